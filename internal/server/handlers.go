package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/command"
	"tools.zach/dev/chatbubble/internal/profile"
	"tools.zach/dev/chatbubble/internal/titles"
)

// errBadRequest marks malformed request payloads.
var errBadRequest = errors.New("bad request")

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, profile.ErrInvalidUserID),
		errors.Is(err, bubble.ErrEmptyMessage),
		errors.Is(err, command.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, bubble.ErrCanvasTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// bindJSON decodes the request body into v. Oversized bodies keep their
// own error so they map to 413.
func bindJSON(c *gin.Context, v any) error {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return nil
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// fail writes err as a JSON error with its mapped status.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ///////////////////////////////////////////////
// Info
// ///////////////////////////////////////////////

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.opts.Version})
}

func (s *Server) help(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"help": command.HelpText()})
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// command runs a chat command and answers with a PNG or a text reply.
func (s *Server) command(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	reply, err := s.cmds.Dispatch(c.Request.Context(), req.Message)
	if err != nil {
		fail(c, err)
		return
	}
	if reply.Image != nil {
		c.Data(http.StatusOK, "image/png", reply.Image)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply.Text})
}

// echo renders a message from JSON (base64 image) or multipart form data.
func (s *Server) echo(c *gin.Context) {
	var (
		req command.EchoRequest
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = echoFromForm(c, s.opts.MaxImagePixels)
	} else {
		req, err = echoFromJSON(c, s.opts.MaxImagePixels)
	}
	if err != nil {
		fail(c, err)
		return
	}
	png, err := s.cmds.EchoPNG(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func echoFromJSON(c *gin.Context, maxPixels int) (command.EchoRequest, error) {
	var body struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
		Image  string `json:"image"`
	}
	if err := bindJSON(c, &body); err != nil {
		return command.EchoRequest{}, err
	}
	req := command.EchoRequest{UserID: body.UserID, Text: body.Text}
	if body.Image != "" {
		data, err := decodeBase64(body.Image)
		if err != nil {
			return req, err
		}
		if req.Image, err = decodeImage(data, maxPixels); err != nil {
			return req, err
		}
	}
	return req, nil
}

func echoFromForm(c *gin.Context, maxPixels int) (command.EchoRequest, error) {
	req := command.EchoRequest{UserID: c.PostForm("user_id"), Text: c.PostForm("text")}
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return req, err
		}
		return req, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	data, err := readFormFile(fh)
	if err != nil {
		return req, err
	}
	req.Image, err = decodeImage(data, maxPixels)
	return req, err
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// decodeBase64 accepts plain base64, "base64://" and data URLs.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "base64://")
	if strings.HasPrefix(s, "data:") {
		if _, after, ok := strings.Cut(s, ","); ok {
			s = after
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64: %v", errBadRequest, err)
	}
	return data, nil
}

// ///////////////////////////////////////////////
// Titles
// ///////////////////////////////////////////////

// titleResponse is the JSON form of a title record.
type titleResponse struct {
	UserID string        `json:"user_id"`
	Record titles.Record `json:"record"`
}

func (s *Server) getTitle(c *gin.Context) {
	id := c.Param("id")
	rec, ok, err := s.cmds.Title(id)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no title record for " + id})
		return
	}
	c.JSON(http.StatusOK, titleResponse{UserID: id, Record: rec})
}

func (s *Server) putTitle(c *gin.Context) {
	var set func(userID, value string) (titles.Record, error)
	switch c.Param("field") {
	case titles.FieldColor.String():
		set = s.cmds.SetColor
	case titles.FieldTitle.String():
		set = s.cmds.SetTitle
	case titles.FieldNote.String():
		set = s.cmds.SetNote
	default:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown field " + c.Param("field")})
		return
	}

	var body struct {
		Value *string `json:"value"`
	}
	if err := bindJSON(c, &body); err != nil {
		fail(c, err)
		return
	}
	if body.Value == nil {
		fail(c, fmt.Errorf("%w: missing \"value\"", errBadRequest))
		return
	}
	id := c.Param("id")
	rec, err := set(id, *body.Value)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, titleResponse{UserID: id, Record: rec})
}
