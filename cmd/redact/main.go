// Command redact removes personal data from PDF documents.
//
// Usage:
//
//	redact run brief.pdf -o brief-redacted.pdf --report report.md
//	redact text scan.pdf
//	redact detect notes.txt
//
// Exit status is 0 on success, 1 on errors and 3 when the document was
// written but some detected spans could not be located.
package main

import "os"

func main() {
	os.Exit(Execute())
}
