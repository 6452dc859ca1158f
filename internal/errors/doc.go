// Package errors provides the coded errors the obsidium CLI prints.
//
// Each code is registered once with a message and an optional suggestion:
//
//	E100-E119  configuration
//	E120-E139  network
//	E140-E159  storage
//	E160-E179  CLI
//
// # Usage
//
//	return errors.New("E100").
//	    WithDetail("no obsidium.json in " + dir)
//
// The CLI prints errors with Format, which colors the output unless
// DisableColors was called.
package errors
