// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package drm

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"
)

// Well-known protection system IDs (hex, no dashes).
const (
	WidevineSystemID  = "edef8ba979d64acea3c827dcd51d21ed"
	PlayReadySystemID = "9a04f07998404286ab92e65be0885f95"
	FairPlaySystemID  = "94ce86fb07ff4f43adb893d2fa968ca2"
	ClearKeySystemID  = "e2719d58a985b3c9781ab030af78d30e"
	MarlinSystemID    = "5e629af538da4063897797ffbd9902d4"
)

var systemNames = map[string]string{
	WidevineSystemID:  "widevine",
	PlayReadySystemID: "playready",
	FairPlaySystemID:  "fairplay",
	ClearKeySystemID:  "clearkey",
	MarlinSystemID:    "marlin",
}

// normalizeSystemID turns "urn:uuid:EDEF8BA9-79d6-..." or a dashed UUID into
// lower-case hex without dashes.
func normalizeSystemID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "urn:uuid:")
	return strings.ReplaceAll(s, "-", "")
}

// SystemName returns a readable name for a protection system ID.
func SystemName(systemID string) string {
	id := normalizeSystemID(systemID)
	if name, ok := systemNames[id]; ok {
		return name
	}
	return id
}

func isWidevine(box *mp4.PsshBox) bool {
	return hex.EncodeToString(box.SystemID) == WidevineSystemID
}

// psshBoxesFromInit decodes a fragmented MP4 init chunk and returns the PSSH
// boxes found in moov.
func psshBoxesFromInit(data []byte) ([]*mp4.PsshBox, error) {
	r := bytes.NewReader(data)
	var offset uint64
	for {
		box, err := mp4.DecodeBox(offset, r)
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no moov box in init segment", ErrInvalidMedia)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode box at offset %d: %v", ErrInvalidMedia, offset, err)
		}
		if moov, ok := box.(*mp4.MoovBox); ok {
			return moov.Psshs, nil
		}
		offset += box.Size()
	}
}

// psshFromBase64 decodes a cenc:pssh manifest value into a PSSH box.
func psshFromBase64(value string) (*mp4.PsshBox, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode cenc:pssh: %w", err)
	}
	box, err := mp4.DecodeBox(0, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode cenc:pssh box: %w", err)
	}
	pssh, ok := box.(*mp4.PsshBox)
	if !ok {
		return nil, fmt.Errorf("cenc:pssh is a %s box", box.Type())
	}
	return pssh, nil
}

func encodeBox(box *mp4.PsshBox) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(box.Size()))
	if err := box.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode pssh: %w", err)
	}
	return buf.Bytes(), nil
}
