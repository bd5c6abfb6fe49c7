package ocr

import "context"

var defaultEngine Engine = noopEngine{}

// DefaultEngine returns the registered engine. Importing ocr/tesseract
// registers Tesseract; without it scanned pages recognise as empty.
func DefaultEngine() Engine {
	return defaultEngine
}

// SetDefaultEngine replaces the registered engine.
func SetDefaultEngine(engine Engine) {
	defaultEngine = engine
}

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Recognize(_ context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}
