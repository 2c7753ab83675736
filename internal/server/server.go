// Package server exposes the voice lifecycle and synthesis operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/book-expert/voicebox/internal/audio"
	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/synthesis"
	"github.com/book-expert/voicebox/internal/voices"
)

// Form fields.
const (
	fieldName       = "name"
	fieldTranscript = "transcript"
	fieldAudio      = "audio"
	fieldVoice      = "voice"
	fieldText       = "text"
	fieldSpeed      = "speed"
)

// Response headers.
const (
	headerSampleRate = "X-Sample-Rate"
	contentTypeWAV   = "audio/wav"
	appName          = "voicebox"
	bytesPerMegabyte = 1 << 20
)

// Log formats.
const (
	logFmtUploadCleanup = "Failed to remove upload %s: %v"
	logFmtRequestFailed = "%s %s failed: %v"
	logFmtListening     = "HTTP server listening on %s"
)

// Validation messages.
const (
	msgFmtUnsupportedFormat = "unsupported audio format %q"
	msgFmtInvalidSpeed      = "invalid speed %q"
)

// VoiceService is the voice lifecycle as used by the HTTP handlers.
type VoiceService interface {
	ListVoiceNames() ([]string, error)
	SelectVoice(name string) (audioPath, transcript string, found bool, err error)
	SaveVoice(ctx context.Context, name, sourceAudioPath, transcript string) (voices.Result, error)
	DeleteVoice(ctx context.Context, name string) (voices.Result, error)
	DescribeVoices() ([]voices.Summary, error)
}

// Synthesizer turns requests into speech.
type Synthesizer interface {
	ResolveVoiceSelection(name string) (audioPath, transcript string, ok bool, err error)
	Generate(ctx context.Context, req synthesis.Request) (core.Waveform, error)
}

// Options configures the server.
type Options struct {
	// UploadDir receives uploaded clips for the duration of a request.
	UploadDir string
	// UploadLimitMB caps the request body size.
	UploadLimitMB int
	// DefaultSpeed is used when a generate request carries no speed.
	DefaultSpeed float64
}

// Server is the HTTP presentation adapter.
type Server struct {
	app         *fiber.App
	voices      VoiceService
	synthesizer Synthesizer
	opts        Options
	log         *logger.Logger
}

// New creates a Server with all routes registered.
func New(voiceService VoiceService, synthesizer Synthesizer, opts Options, log *logger.Logger) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               appName,
			BodyLimit:             opts.UploadLimitMB * bytesPerMegabyte,
			DisableStartupMessage: true,
		}),
		voices:      voiceService,
		synthesizer: synthesizer,
		opts:        opts,
		log:         log,
	}

	s.routes()

	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info(logFmtListening, addr)

	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")
	api.Get("/voices", s.handleListVoices)
	api.Get("/voices/table", s.handleVoicesTable)
	api.Get("/voices/:name", s.handleSelectVoice)
	api.Post("/voices", s.handleSaveVoice)
	api.Delete("/voices/:name", s.handleDeleteVoice)
	api.Post("/generate", s.handleGenerate)
}

func (s *Server) handleListVoices(c *fiber.Ctx) error {
	names, err := s.voices.ListVoiceNames()
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{"names": nonNil(names)})
}

func (s *Server) handleVoicesTable(c *fiber.Ctx) error {
	summaries, err := s.voices.DescribeVoices()
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"rows":     summaries,
		"markdown": voices.RenderTable(summaries),
	})
}

func (s *Server) handleSelectVoice(c *fiber.Ctx) error {
	name, err := pathName(c)
	if err != nil {
		return s.fail(c, err)
	}

	audioPath, transcript, found, err := s.voices.SelectVoice(name)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"found":      found,
		"audio_path": audioPath,
		"transcript": transcript,
	})
}

func (s *Server) handleSaveVoice(c *fiber.Ctx) error {
	uploadPath, cleanup, err := s.receiveUpload(c)
	if err != nil {
		names, _ := s.voices.ListVoiceNames()

		return s.failResult(c, voices.Result{Names: names}, err)
	}
	defer cleanup()

	result, err := s.voices.SaveVoice(c.UserContext(), c.FormValue(fieldName), uploadPath, c.FormValue(fieldTranscript))
	if err != nil {
		return s.failResult(c, result, err)
	}

	result.Names = nonNil(result.Names)

	return c.JSON(result)
}

func (s *Server) handleDeleteVoice(c *fiber.Ctx) error {
	name, err := pathName(c)
	if err != nil {
		return s.fail(c, err)
	}

	result, err := s.voices.DeleteVoice(c.UserContext(), name)
	if err != nil {
		return s.failResult(c, result, err)
	}

	result.Names = nonNil(result.Names)

	return c.JSON(result)
}

// handleGenerate accepts either an uploaded reference clip or the name of a saved voice.
// A non-blank transcript field overrides the saved voice's transcript.
func (s *Server) handleGenerate(c *fiber.Ctx) error {
	speed, err := s.parseSpeed(c.FormValue(fieldSpeed))
	if err != nil {
		return s.fail(c, err)
	}

	uploadPath, cleanup, err := s.receiveUpload(c)
	if err != nil {
		return s.fail(c, err)
	}
	defer cleanup()

	req := synthesis.Request{
		ReferenceAudio: uploadPath,
		ReferenceText:  c.FormValue(fieldTranscript),
		TargetText:     c.FormValue(fieldText),
		Speed:          speed,
	}

	if req.ReferenceAudio == "" {
		audioPath, transcript, ok, resolveErr := s.synthesizer.ResolveVoiceSelection(c.FormValue(fieldVoice))
		if resolveErr != nil {
			return s.fail(c, resolveErr)
		}

		if ok {
			req.ReferenceAudio = audioPath

			if strings.TrimSpace(req.ReferenceText) == "" {
				req.ReferenceText = transcript
			}
		}
	}

	waveform, err := s.synthesizer.Generate(c.UserContext(), req)
	if err != nil {
		return s.fail(c, err)
	}

	wavData, err := audio.RenderWAV(waveform)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, contentTypeWAV)
	c.Set(headerSampleRate, strconv.Itoa(waveform.SampleRate))

	return c.Send(wavData)
}

// receiveUpload stores the "audio" file part under a random name in the upload
// directory. A request without the part yields an empty path and a no-op cleanup.
func (s *Server) receiveUpload(c *fiber.Ctx) (string, func(), error) {
	noop := func() {}

	fileHeader, err := c.FormFile(fieldAudio)
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return "", noop, nil
		}

		return "", noop, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	uploadPath, err := s.uploadPath(fileHeader)
	if err != nil {
		return "", noop, err
	}

	saveErr := c.SaveFile(fileHeader, uploadPath)
	if saveErr != nil {
		return "", noop, fmt.Errorf("%w: failed to save upload: %w", core.ErrIO, saveErr)
	}

	cleanup := func() {
		removeErr := os.Remove(uploadPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			s.log.Warn(logFmtUploadCleanup, uploadPath, removeErr)
		}
	}

	return uploadPath, cleanup, nil
}

func (s *Server) uploadPath(fileHeader *multipart.FileHeader) (string, error) {
	format, ok := audio.FormatOf(fileHeader.Filename)
	if !ok {
		return "", fmt.Errorf("%w: "+msgFmtUnsupportedFormat, core.ErrValidation, format)
	}

	return filepath.Join(s.opts.UploadDir, uuid.NewString()+"."+string(format)), nil
}

func (s *Server) parseSpeed(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.opts.DefaultSpeed, nil
	}

	speed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: "+msgFmtInvalidSpeed, core.ErrValidation, raw)
	}

	return speed, nil
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	s.logFailure(c, err)

	return c.Status(statusCode(err)).JSON(fiber.Map{"status": core.StatusMessage(err)})
}

func (s *Server) failResult(c *fiber.Ctx, result voices.Result, err error) error {
	s.logFailure(c, err)

	result.Status = core.StatusMessage(err)
	result.Names = nonNil(result.Names)

	return c.Status(statusCode(err)).JSON(result)
}

func (s *Server) logFailure(c *fiber.Ctx, err error) {
	if core.IsUserError(err) {
		return
	}

	s.log.Error(logFmtRequestFailed, c.Method(), c.Path(), err)
}

// statusCode maps an error kind to its HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, core.ErrTranscription), errors.Is(err, core.ErrSynthesis):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func pathName(c *fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params(fieldName))
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	return name, nil
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}

	return names
}
