package server

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// ZstdMiddleware transparently decompresses zstd request bodies and, when the
// client advertises support, compresses response bodies. Routes whose path
// starts with a skipped prefix pass through untouched; streaming responses
// must never be buffered and rewritten here.
func ZstdMiddleware(skipPrefixes []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		if strings.EqualFold(c.Get(fiber.HeaderContentEncoding), "zstd") {
			body := c.Body()
			if len(body) > 0 {
				decoder, err := zstd.NewReader(bytes.NewReader(body))
				if err != nil {
					return fiber.NewError(fiber.StatusBadRequest, "could not decompress zstd body: "+err.Error())
				}
				decompressed, err := io.ReadAll(decoder)
				decoder.Close()
				if err != nil {
					return fiber.NewError(fiber.StatusBadRequest, "could not decompress zstd body: "+err.Error())
				}
				c.Request().SetBody(decompressed)
				c.Request().Header.Del(fiber.HeaderContentEncoding)
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		if strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			responseBody := c.Response().Body()
			if len(responseBody) > 0 {
				encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
				if err != nil {
					log.Err(err).Msg("could not create zstd encoder, sending uncompressed")
					return nil
				}
				compressed := encoder.EncodeAll(responseBody, nil)
				encoder.Close()

				c.Response().SetBody(compressed)
				c.Set(fiber.HeaderContentEncoding, "zstd")
				c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", len(compressed)))
			}
		}

		return nil
	}
}
