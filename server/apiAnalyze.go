package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/scenescan/scenescan/pkg/videox"
	"github.com/scenescan/scenescan/pkg/www"
)

// Upload size cap. Beyond this we reject rather than spill to disk.
const maxUploadBytes = 512 * 1024 * 1024

// Container formats we'll hand to the decoder. This is an extension check
// only; a garbage file with a valid extension still fails at decode time.
var allowedVideoExt = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
	".wmv": true,
}

func allowedExtList() string {
	list := make([]string, 0, len(allowedVideoExt))
	for ext := range allowedVideoExt {
		list = append(list, ext)
	}
	// map order is random, but the error message should be stable
	sort.Strings(list)
	return strings.Join(list, ", ")
}

func (s *Server) httpAnalyze(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		www.PanicBadRequestf("Expected a video upload in multipart field 'file': %v", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedVideoExt[ext] {
		www.PanicBadRequestf("Unsupported file type '%v'. Supported formats: %v", ext, allowedExtList())
	}
	if header.Size == 0 {
		www.PanicBadRequestf("Uploaded file is empty")
	}

	tempFile, err := s.spillUpload(file, ext)
	if err != nil {
		s.Log.Errorf("Failed to spill upload to disk: %v", err)
		www.PanicServerError(www.GenericServerError)
	}
	defer os.Remove(tempFile)

	result, err := s.pipeline.AnalyzeVideo(r.Context(), tempFile)
	if err != nil {
		s.sendAnalyzeError(w, r, err)
		return
	}
	www.SendJSON(w, result)
}

// spillUpload copies the upload into the temp directory and returns the path.
// The caller owns the file and must remove it.
func (s *Server) spillUpload(src io.Reader, ext string) (string, error) {
	name := filepath.Join(s.tempPath(), "scenescan-"+uuid.NewString()+ext)
	dst, err := os.Create(name)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(dst, src)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (s *Server) sendAnalyzeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, videox.ErrUnreadableVideo):
		www.SendError(w, "Could not read the uploaded video. The file may be corrupt or in an unsupported encoding.", http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
		// client went away; nothing to send
		s.Log.Infof("Analysis of %v canceled by client", r.URL.Path)
	default:
		s.Log.Errorf("Analysis failed: %v", err)
		www.SendError(w, www.GenericServerError, http.StatusInternalServerError)
	}
}
