package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/turnforge/agentcore/internal/protocol"
)

// ViewImageTool implements the built-in "view_image" tool: reads an image
// file, downscales/re-encodes it to stay under provider size limits, and
// returns it as an inline image part alongside a text summary, grounded on
// the teacher's ViewImageTool.
type ViewImageTool struct {
	BaseTool
}

func NewViewImageTool() *ViewImageTool { return &ViewImageTool{} }

type viewImageArgs struct {
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

const (
	maxImageBytes   = 5 * 1024 * 1024
	maxImageDim     = 1568
	viewJPEGQuality = 85
)

var supportedImageFormats = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func (t *ViewImageTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "view_image",
		Description: "View an image file. Returns the image inline for multimodal analysis. Supports PNG, JPEG, GIF, WebP.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":   map[string]interface{}{"type": "string", "description": "Path to the image file"},
				"detail": map[string]interface{}{"type": "string", "enum": []string{"low", "high", "auto"}, "default": "auto"},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

func (t *ViewImageTool) ConcurrencySafety() ConcurrencySafety { return ReadOnly }
func (t *ViewImageTool) DefaultApproval() ApprovalDefault     { return ApprovalUnlessTrusted }

func (t *ViewImageTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a viewImageArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Path == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "path is required")), nil
	}

	ext := strings.ToLower(filepath.Ext(a.Path))
	mimeType, ok := supportedImageFormats[ext]
	if !ok {
		return ErrorResult(call, NewToolErrorf(ErrUnsupportedFormat, "unsupported format %q (supported: png, jpg, jpeg, gif, webp)", ext)), nil
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(call, NewToolError(ErrNotFound, a.Path)), nil
		}
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to read image: %v", err)), nil
	}

	processed, processedMime, resized, err := processImage(data, mimeType)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to process image: %v", err)), nil
	}

	detail := a.Detail
	if detail != "low" && detail != "high" {
		detail = "auto"
	}

	sizeInfo := fmt.Sprintf("Size: %d bytes", len(processed))
	if resized {
		sizeInfo = fmt.Sprintf("Size: %d bytes (resized from %d bytes)", len(processed), len(data))
	}
	text := fmt.Sprintf("Image loaded: %s\nFormat: %s\n%s\nDetail: %s", a.Path, processedMime, sizeInfo, detail)

	return protocol.ToolResult{
		ID:   call.ID,
		Name: call.Name,
		ContentParts: []protocol.ToolContentPart{
			{Type: protocol.PartText, Text: text},
			{Type: protocol.PartImage, ImageData: &protocol.ImageData{MimeType: processedMime, Data: processed}},
		},
	}, nil
}

// processImage downscales the image if it exceeds maxImageDim in either
// dimension or maxImageBytes in size, re-encoding PNG/GIF sources as PNG
// (to preserve transparency) and everything else as JPEG.
func processImage(data []byte, originalMime string) ([]byte, string, bool, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxImageDim && height <= maxImageDim && len(data) <= maxImageBytes {
		return data, originalMime, false, nil
	}

	newWidth, newHeight := width, height
	if width > maxImageDim || height > maxImageDim {
		if width > height {
			newWidth = maxImageDim
			newHeight = int(float64(height) * float64(maxImageDim) / float64(width))
		} else {
			newHeight = maxImageDim
			newWidth = int(float64(width) * float64(maxImageDim) / float64(height))
		}
	}

	resized := resizeImage(img, newWidth, newHeight)
	result, outputMime, err := encodeImage(resized, format, viewJPEGQuality)
	if err != nil {
		return nil, "", false, err
	}

	if len(result) > maxImageBytes {
		result, outputMime, err = encodeImage(resized, format, 70)
		if err != nil {
			return nil, "", false, err
		}
	}
	if len(result) > maxImageBytes {
		resized = resizeImage(img, newWidth*3/4, newHeight*3/4)
		result, outputMime, err = encodeImage(resized, format, 70)
		if err != nil {
			return nil, "", false, err
		}
	}
	if len(result) > maxImageBytes {
		return nil, "", false, fmt.Errorf("image still exceeds %d bytes after resizing (%d bytes)", maxImageBytes, len(result))
	}

	return result, outputMime, true, nil
}

func encodeImage(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	switch format {
	case "png", "gif":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}

func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
