//go:build cgo

package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract"
)

type tesseractEngine struct {
	language string
}

func newRecognizer(language string) recognizer {
	return tesseractEngine{language: language}
}

func (e tesseractEngine) Recognize(imagePath string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if e.language != "" {
		if err := client.SetLanguage(e.language); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return text, nil
}
