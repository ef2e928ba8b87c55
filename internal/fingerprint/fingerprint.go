// Package fingerprint derives the device identifier a token is bound to.
//
// A device is identified either by a random id the client keeps (header
// X-Device-ID or the synapse_device cookie) or, failing that, by a hash of
// request headers. Client ids survive browser updates; header hashes do not.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/yourorg/synapse/internal/config"
)

const (
	HeaderDeviceID = "X-Device-ID"
	CookieDeviceID = "synapse_device"

	SourceClient  = "client"
	SourceHeaders = "headers"

	clientPrefix = "c-"
	headerPrefix = "h-"
)

// Device is the resolved identity of the caller.
type Device struct {
	ID     string
	Source string
	// Issued is set when a new client id was minted for this request; the
	// caller should persist ClientID in the device cookie.
	Issued   bool
	ClientID string
}

type Resolver struct {
	Mode string
}

func NewResolver(mode string) Resolver {
	switch mode {
	case config.FingerprintClient, config.FingerprintHeaders:
	default:
		mode = config.FingerprintAuto
	}
	return Resolver{Mode: mode}
}

// Resolve identifies the device behind c.
func (r Resolver) Resolve(c *fiber.Ctx) Device {
	if r.Mode == config.FingerprintHeaders {
		return headerDevice(c)
	}
	if id, ok := clientID(c); ok {
		return Device{ID: clientPrefix + id, Source: SourceClient, ClientID: id}
	}
	if r.Mode == config.FingerprintClient {
		id := uuid.NewString()
		return Device{ID: clientPrefix + id, Source: SourceClient, Issued: true, ClientID: id}
	}
	return headerDevice(c)
}

// Peek identifies the device without minting a client id. It is used on
// read paths where no cookie can be handed out.
func (r Resolver) Peek(c *fiber.Ctx) Device {
	if r.Mode != config.FingerprintHeaders {
		if id, ok := clientID(c); ok {
			return Device{ID: clientPrefix + id, Source: SourceClient, ClientID: id}
		}
		if r.Mode == config.FingerprintClient {
			return Device{}
		}
	}
	return headerDevice(c)
}

func clientID(c *fiber.Ctx) (string, bool) {
	for _, raw := range []string{c.Get(HeaderDeviceID), c.Cookies(CookieDeviceID)} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			continue
		}
		return id.String(), true
	}
	return "", false
}

func headerDevice(c *fiber.Ctx) Device {
	return Device{
		ID:     HashHeaders(c.Get(fiber.HeaderUserAgent), c.Get(fiber.HeaderAcceptLanguage)),
		Source: SourceHeaders,
	}
}

// HashHeaders is the header-derived device id.
func HashHeaders(userAgent, acceptLanguage string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(userAgent)))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.TrimSpace(acceptLanguage)))
	return headerPrefix + hex.EncodeToString(h.Sum(nil))
}
