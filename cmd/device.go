// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/gecostat/internal/bridge"
	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

// newCodec builds a codec for the configured ids and device profile
func newCodec(handler geco.MessageHandler) (*geco.Codec, error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	return geco.NewCodec(cfg.Addresses(), profile, handler)
}

// applyTiming copies link timing overrides onto a session
func applyTiming(session *geco.Session, lc config.LinkConfig) {
	if lc.Timeout > 0 {
		session.ReadTimeout = lc.Timeout
	}
	if lc.MarkerTimeout > 0 {
		session.MarkerTimeout = lc.MarkerTimeout
	}
	if lc.Window > 0 {
		session.WindowSize = lc.Window
	}
}

// openSession opens the configured link, prints the command banner and
// returns a session whose codec hands every frame to handler. The link
// must be closed by the caller.
func openSession(ctx context.Context, title string, handler geco.MessageHandler) (*geco.Session, bridge.Link, error) {
	codec, err := newCodec(handler)
	if err != nil {
		return nil, nil, err
	}

	link, info, err := OpenLink(ctx, cfg.Link)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("link open", zap.String("link", info))

	profile := codec.Profile()
	ids := codec.Addresses()
	printBanner(title,
		fmt.Sprintf("Connection: %s", info),
		fmt.Sprintf("Device: %s (%s) | ids %d/%d -> %d/%d", profile.Name, profile.Description,
			ids.ControllerHard, ids.ControllerSoft, ids.DeviceHard, ids.DeviceSoft))

	session := geco.NewSession(link, codec)
	applyTiming(session, cfg.Link)
	return session, link, nil
}

// decodeInto returns a handler that decodes every register-carrying frame
// into *out. When verbose, each frame is printed first.
func decodeInto(out *geco.Readings, includeUnknown, verbose bool) geco.MessageHandler {
	return func(c *geco.Codec, msg *geco.Message) error {
		if verbose {
			printMessage(msg)
		}
		if !msg.CarriesRegisters(c.Addresses()) {
			return nil
		}
		readings, err := c.Decode(msg, includeUnknown)
		if err != nil {
			return err
		}
		*out = append(*out, readings...)
		return nil
	}
}
