package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/formloom/formloom/internal/extract"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleFromText(c *fiber.Ctx) error {
	var req textRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	res, err := s.creator.FromText(c.Context(), req.Text, defaultRequired(req.DefaultRequired))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleFromFile(c *fiber.Ctx) error {
	fh, err := c.FormFile(FileField)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("multipart field %q is required", FileField))
	}
	if !extract.Allowed(fh.Filename) {
		allowed := extract.AllowedList()
		sort.Strings(allowed)
		return fiber.NewError(fiber.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q, allowed: %s", fh.Filename, strings.Join(allowed, ", ")))
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "could not open upload: "+err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "could not read upload: "+err.Error())
	}

	required := true
	if v := c.FormValue(DefaultRequiredField); v != "" {
		required, err = strconv.ParseBool(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, DefaultRequiredField+" must be a boolean")
		}
	}

	res, err := s.creator.FromFile(c.Context(), fh.Filename, data, required)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleFromDoc(c *fiber.Ctx) error {
	var req docRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "url is required")
	}

	res, err := s.creator.FromDoc(c.Context(), req.URL, defaultRequired(req.DefaultRequired))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleFromScript(c *fiber.Ctx) error {
	var req scriptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Code) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	res, err := s.creator.FromScript(c.Context(), req.Code, defaultRequired(req.DefaultRequired))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleCreate(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	res, err := s.creator.Create(c.Context(), req.Spec)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// handleSessionLogs streams a session's log entries as server-sent events,
// replaying buffered entries from the start so late subscribers see the full
// history. The stream ends after the terminal entry or on session eviction.
func (s *Server) handleSessionLogs(c *fiber.Ctx) error {
	id := c.Params("id")

	ctx, cancel := context.WithCancel(context.Background())
	entries, err := s.logs.Stream(ctx, id)
	if err != nil {
		cancel()
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for entry := range entries {
			payload, err := sonic.Marshal(entry)
			if err != nil {
				log.Error().Err(err).Msg("could not marshal log entry")
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			// A failed flush means the client went away; cancelling tears
			// down the registry reader.
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
