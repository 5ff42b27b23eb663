package batch

import (
	"fmt"
	"path"
	"strings"

	"github.com/cardscan-intake/gateway/internal/backend"
)

// Admission limits. A batch violating any of them is rejected as a whole
// before a single byte goes to the backend.
const (
	MaxBatchFiles = 300
	MaxBatchBytes = 20 << 20 // 20 MiB
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
}

// AdmissionError explains why a batch was rejected. Title and Reason map
// straight onto the notification shown to the user.
type AdmissionError struct {
	Title  string
	Reason string
}

func (e *AdmissionError) Error() string {
	return e.Title + ": " + e.Reason
}

// CheckAdmission applies the client-side gate: file count first, then file
// types, then total size. The first violated rule wins.
func CheckAdmission(files []backend.Upload) *AdmissionError {
	if len(files) > MaxBatchFiles {
		return &AdmissionError{
			Title:  fmt.Sprintf("Maximum %d files allowed", MaxBatchFiles),
			Reason: "Please select fewer files and try again.",
		}
	}

	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Name))
		if !allowedExtensions[ext] {
			return &AdmissionError{
				Title:  "Invalid file types detected",
				Reason: "Only image files (PNG, JPG, JPEG) and PDF files are allowed.",
			}
		}
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	if total > MaxBatchBytes {
		return &AdmissionError{
			Title: "Batch too large",
			Reason: fmt.Sprintf("Total size %.1fMB exceeds 20MB limit. Please select fewer or smaller files.",
				float64(total)/(1024*1024)),
		}
	}
	return nil
}
