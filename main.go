/*
Entry point for the testbed application. It wires the testbed game
into the engine and hands control to the frame loop; a SIGINT or
SIGTERM is translated into the same quit event the Escape key fires,
so the loop winds down through the normal shutdown path.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/abdes/oxygen/engine"
	"github.com/abdes/oxygen/engine/core"
	"github.com/abdes/oxygen/testbed"
)

func main() {
	tb, err := testbed.NewTestGame()
	if err != nil {
		panic(err)
	}

	eng, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := eng.Initialize(); err != nil {
		panic(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		core.EventFire(core.EventCodeApplicationQuit, nil, nil)
	}()

	if err := eng.Run(); err != nil {
		panic(err)
	}
}
