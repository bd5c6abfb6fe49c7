// Package ocr defines the abstraction for plugging OCR engines (for
// example Tesseract) into text acquisition. Scanned pages are rendered to
// images and recognised here when they carry no native text.
package ocr
