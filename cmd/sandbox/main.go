// Sandbox runs a server and two clients in one process over the loopback
// bus: each client spawns and owns a body, the simulation runs a few
// seconds, and the final digests show all three replicas converged.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/inkwell2d/netphys/internal/netmsg"
	"github.com/inkwell2d/netphys/internal/replica"
	"github.com/inkwell2d/netphys/internal/transport"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	bus := transport.NewBus()

	serverPeer := bus.Join()
	server := replica.NewSession(replica.Options{
		Transport: serverPeer,
		IDs:       transport.NewIDGenerator(1),
		Server:    true,
	})
	serverPeer.SetHandler(server.HandleEnvelope)

	clients := make([]*replica.Session, 0, 2)
	for i := 0; i < 2; i++ {
		peer := bus.Join()
		c := replica.NewSession(replica.Options{
			Transport:  peer,
			IDs:        transport.NewIDGenerator(uint16(i + 2)),
			ServerPeer: serverPeer.PeerID(),
		})
		peer.SetHandler(c.HandleEnvelope)
		clients = append(clients, c)
	}

	world, err := server.NewWorld(0, -40)
	if err != nil {
		return err
	}

	ground, err := server.NewBody(world, 0, -10, replica.BodyStatic, 0, 0)
	if err != nil {
		return err
	}
	if _, err := server.NewFixture(ground, netmsg.Segment(-100, 0, 100, 0, 1)); err != nil {
		return err
	}

	for i, c := range clients {
		body, err := c.NewBody(world, float64(i*6-3), 30, replica.BodyDynamic, 1, 0.5)
		if err != nil {
			return err
		}
		if _, err := c.NewFixture(body, netmsg.Circle(1, 0, 0)); err != nil {
			return err
		}
		if err := c.SetOwner(body, c.PeerID(), true, 0.1); err != nil {
			return err
		}
		if err := c.ApplyImpulse(body, float64(2-i*4), 0); err != nil {
			return err
		}
	}

	const dt = 1.0 / 60
	for i := 0; i < 600; i++ {
		if err := server.UpdateWorld(world, dt); err != nil {
			return err
		}
		for _, c := range clients {
			if err := c.UpdateWorld(world, dt); err != nil {
				return err
			}
		}
	}

	digest, err := server.WorldDigest(world)
	if err != nil {
		return err
	}
	fmt.Printf("server  %x\n", digest)
	for i, c := range clients {
		d, err := c.WorldDigest(world)
		if err != nil {
			return err
		}
		fmt.Printf("client%d %x\n", i+1, d)
	}
	return nil
}
