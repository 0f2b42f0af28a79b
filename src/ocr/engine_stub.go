//go:build !cgo

package ocr

type unavailableEngine struct{}

func newRecognizer(string) recognizer { return unavailableEngine{} }

func (unavailableEngine) Recognize(string) (string, error) {
	return "", ErrBackendUnavailable
}
