package internal

import (
	"io"
	"net/http"

	"telechat/internal/blob"
)

const multipartMemory = 8 << 20

// decodeMultipartUpload reads the "file" field of a multipart upload. The
// optional "mimeType" and "uploader" fields override what the part declares.
func decodeMultipartUpload(r *http.Request, maxBytes int64) (blob.Object, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return blob.Object{}, bodyError(err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return blob.Object{}, &blob.UploadError{Status: http.StatusBadRequest, Msg: "no file provided", Err: err}
	}
	defer file.Close()

	if maxBytes > 0 && header.Size > maxBytes {
		return blob.Object{}, &blob.UploadError{Status: http.StatusRequestEntityTooLarge, Msg: "file too large", Err: blob.ErrTooLarge}
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return blob.Object{}, &blob.UploadError{Status: http.StatusBadRequest, Msg: "read upload", Err: err}
	}
	if len(data) == 0 {
		return blob.Object{}, &blob.UploadError{Status: http.StatusBadRequest, Msg: "empty upload", Err: blob.ErrEmpty}
	}

	mimeType := r.FormValue("mimeType")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	fileName := sanitizeFileName(header.Filename)
	if fileName == "" {
		return blob.Object{}, &blob.UploadError{Status: http.StatusBadRequest, Msg: "invalid filename"}
	}
	return blob.Object{
		Data:     data,
		FileName: fileName,
		MimeType: mimeType,
		Uploader: sanitizeUploader(r.FormValue("uploader")),
	}, nil
}
