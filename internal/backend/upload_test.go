package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatViews(t *testing.T) {
	s, err := FormatViews([]int{0, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, "0,2,4", s)

	s, err = FormatViews(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = FormatViews([]int{8})
	assert.ErrorIs(t, err, ErrInvalidView)
}

func TestParseViews(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{input: "", want: nil},
		{input: "0,2,4", want: []int{0, 2, 4}},
		{input: " 7 , 1", want: []int{7, 1}},
		{input: "8", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "a,b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseViews(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidView)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_Upload(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "true", r.FormValue("enable_fisheye"))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.mp4", header.Filename)
		assert.Equal(t, "video/mp4", header.Header.Get("Content-Type"))

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, mp4Header, data)

		_, _ = io.WriteString(w, `{"video_url":"/static/uploads/clip.mp4","message":"Upload successful"}`)
	}))

	path := writeFile(t, "clip.mp4", mp4Header)
	res, err := client.Upload(context.Background(), UploadRequest{Path: path, EnableFisheye: true})
	require.NoError(t, err)
	assert.Equal(t, "/static/uploads/clip.mp4", res.VideoURL)
	assert.Equal(t, "Upload successful", res.Message)
}

func TestClient_UploadAndProcess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload_and_process", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "true", r.FormValue("enable_fisheye"))
		assert.Equal(t, "Lobby", r.FormValue("camera_name_prefix"))
		assert.Equal(t, "0,2", r.FormValue("selected_views"))

		_, _ = io.WriteString(w, `{"status":"success","created_cameras":[
			{"id":"a","name":"Lobby - Original","enabled":true},
			{"id":"b","name":"Lobby - View 1 (0°)","enabled":true},
			{"id":"c","name":"Lobby - View 3 (90°)","enabled":true}
		]}`)
	}))

	path := writeFile(t, "lobby.mp4", mp4Header)
	res, err := client.UploadAndProcess(context.Background(), UploadRequest{
		Path:             path,
		EnableFisheye:    true,
		CameraNamePrefix: "Lobby",
		SelectedViews:    []int{0, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	require.Len(t, res.CreatedCameras, 3)
	assert.Equal(t, "Lobby - Original", res.CreatedCameras[0].Name)
}

func TestClient_UploadValidation(t *testing.T) {
	var called bool
	client, cfg := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	t.Run("Not a video", func(t *testing.T) {
		path := writeFile(t, "notes.mp4", []byte("just some text, not a video"))
		_, err := client.Upload(context.Background(), UploadRequest{Path: path})
		assert.ErrorIs(t, err, ErrNotVideo)
	})

	t.Run("Too large", func(t *testing.T) {
		cfg.Upload.MaxFileSize = 8
		defer func() { cfg.Upload.MaxFileSize = 500 * 1024 * 1024 }()

		path := writeFile(t, "big.mp4", mp4Header)
		_, err := client.Upload(context.Background(), UploadRequest{Path: path})
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("Invalid view", func(t *testing.T) {
		path := writeFile(t, "clip.mp4", mp4Header)
		_, err := client.UploadAndProcess(context.Background(), UploadRequest{Path: path, SelectedViews: []int{9}})
		assert.ErrorIs(t, err, ErrInvalidView)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := client.Upload(context.Background(), UploadRequest{Path: "/does/not/exist.mp4"})
		assert.Error(t, err)
	})

	assert.False(t, called)
}

func TestClient_UploadBackendError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"Processing failed"}`)
	}))

	path := writeFile(t, "clip.mp4", mp4Header)
	_, err := client.Upload(context.Background(), UploadRequest{Path: path})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Processing failed", apiErr.Detail)
}
