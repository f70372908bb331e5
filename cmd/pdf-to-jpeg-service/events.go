package main

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
)

var errMissingPDFKey = errors.New("PDFCreatedEvent has no pdf key")

// JPEGCreatedEvent announces one merged image of a converted PDF.
type JPEGCreatedEvent struct {
	Header        events.EventHeader `json:"header"`
	JPEGKey       string             `json:"jpeg_key"`
	ImageNumber   int                `json:"image_number"`
	TotalImages   int                `json:"total_images"`
	PagesPerImage int                `json:"pages_per_image"`
}

// newJPEGCreatedEvent builds the event for the imageNumber-th (1-based) image,
// keeping the workflow identity of the triggering event.
func newJPEGCreatedEvent(
	header *events.EventHeader,
	jpegKey string,
	imageNumber, totalImages, pagesPerImage int,
) *JPEGCreatedEvent {
	return &JPEGCreatedEvent{
		Header: events.EventHeader{
			WorkflowID: header.WorkflowID,
			UserID:     header.UserID,
			TenantID:   header.TenantID,
			EventID:    uuid.New().String(),
			Timestamp:  time.Now(),
		},
		JPEGKey:       jpegKey,
		ImageNumber:   imageNumber,
		TotalImages:   totalImages,
		PagesPerImage: pagesPerImage,
	}
}

// jpegObjectName is the object store key of a merged image:
// tenant/workflow/<pdf>_output_NNN.jpg.
func jpegObjectName(header *events.EventHeader, localPath string) string {
	return header.TenantID + "/" + header.WorkflowID + "/" + filepath.Base(localPath)
}
