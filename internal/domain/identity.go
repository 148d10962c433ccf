package domain

import (
	"math/rand"
	"strings"
	"unicode"
)

const (
	// SessionCodeLength is the number of characters in a session code.
	SessionCodeLength   = 4
	sessionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewSessionCode draws a short, human-typeable session code.
func NewSessionCode(rnd *rand.Rand) string {
	var b strings.Builder
	b.Grow(SessionCodeLength)
	for i := 0; i < SessionCodeLength; i++ {
		b.WriteByte(sessionCodeAlphabet[rnd.Intn(len(sessionCodeAlphabet))])
	}
	return b.String()
}

// NormalizeSessionCode trims and uppercases a typed session code.
func NormalizeSessionCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", ErrEmptySessionID
	}
	for _, r := range code {
		if !strings.ContainsRune(sessionCodeAlphabet, r) {
			return "", ErrSessionNotFound
		}
	}
	return code, nil
}

// ValidatePlayerName checks that a display name can be used as a key in the
// players map. The name itself is kept exactly as typed.
func ValidatePlayerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, "/.#$[]") {
		return ErrInvalidName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrInvalidName
		}
	}
	return nil
}

var playerColors = []string{
	"#e6194B", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#fabed4", "#469990", "#dcbeff",
	"#9A6324", "#fffac8", "#800000", "#aaffc3", "#808000", "#ffd8b1",
	"#000075", "#a9a9a9", "#ffffff", "#000000", "#e6beff", "#57606f",
	"#ffa502", "#ff4757", "#1e90ff", "#2ed573", "#747d8c", "#ff6348",
	"#2f3542", "#7bed9f",
}

// RandomColor picks a display colour for a newly joined player.
func RandomColor(rnd *rand.Rand) string {
	return playerColors[rnd.Intn(len(playerColors))]
}
