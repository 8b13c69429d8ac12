// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package operator

import (
	"fmt"
	"log"
	"os"

	"github.com/eiannone/keyboard"
)

// OpenKeyboard puts the terminal in raw mode and returns a console fed by it.
// The returned close function restores the terminal.
func OpenKeyboard() (*Console, func(), error) {
	if err := keyboard.Open(); err != nil {
		return nil, nil, fmt.Errorf("operator: open keyboard: %w", err)
	}

	keys := make(chan rune, 64)
	c := NewConsole(keys, os.Stdout)

	go func() {
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				log.Printf("operator: keyboard: %v", err)
				c.shutdown()
				return
			}
			if r, ok := translate(char, key); ok {
				c.Inject(r)
			}
		}
	}()

	return c, func() { _ = keyboard.Close() }, nil
}

func translate(char rune, key keyboard.Key) (rune, bool) {
	switch key {
	case 0:
		return char, true
	case keyboard.KeyEnter:
		return KeyEnter, true
	case keyboard.KeySpace:
		return ' ', true
	case keyboard.KeyBackspace, keyboard.KeyBackspace2:
		return KeyBackspace, true
	case keyboard.KeyCtrlC:
		return KeyCtrlC, true
	case keyboard.KeyEsc:
		return KeyEsc, true
	}
	return 0, false
}
