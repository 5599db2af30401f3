package codec

import (
	"bytes"
	"io"
	"mime"
	"strconv"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/zitrone/mailengine/internal/logging"
)

// maxPartSize limits how much of a single MIME part is read into
// memory. Oversized parts are truncated rather than failing the parse.
const maxPartSize int64 = 25 * 1024 * 1024

// AttachmentInfo describes a MIME leaf that is an attachment. PartID is
// the dotted, 1-indexed IMAP part path (e.g. "1.2.1"). Encoding is the
// part's Content-Transfer-Encoding and is informational only.
type AttachmentInfo struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
	PartID   string `json:"partId"`
	Encoding string `json:"encoding"`
}

// Body is the result of extracting a parsed MIME tree: the first
// text/plain and first text/html leaves in depth-first order, plus
// attachment descriptors. HTML is sanitized before exposure.
type Body struct {
	Text           string
	HTML           string
	HasAttachments bool
	Attachments    []AttachmentInfo
}

// ExtractBody parses a raw RFC 5322 message and extracts its bodies and
// attachment metadata. Unparseable input is treated as plain text.
func ExtractBody(raw []byte) *Body {
	log := logging.WithComponent("mime")
	result := &Body{}

	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && entity == nil {
		log.Debug().Err(err).Int("rawLen", len(raw)).Msg("Failed to parse message, treating as plain text")
		result.Text = string(raw)
		return result
	}

	if mr := entity.MultipartReader(); mr != nil {
		walkMultipart(mr, "", result)
	} else {
		extractLeaf(entity, "1", result)
	}

	result.HTML = SanitizeHTML(result.HTML)
	return result
}

// walkMultipart walks a multipart body depth-first, building dotted
// 1-indexed part paths as it descends.
func walkMultipart(mr gomessage.MultipartReader, parentPath string, result *Body) {
	index := 0
	for {
		part, err := mr.NextPart()
		if err != nil {
			return
		}
		index++

		path := strconv.Itoa(index)
		if parentPath != "" {
			path = parentPath + "." + path
		}

		if nested := part.MultipartReader(); nested != nil {
			walkMultipart(nested, path, result)
			continue
		}

		extractLeaf(part, path, result)
	}
}

// extractLeaf handles a single non-multipart MIME leaf.
func extractLeaf(part *gomessage.Entity, path string, result *Body) {
	contentType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
	disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))

	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	isAttachment := disposition == "attachment" || filename != ""

	if !isAttachment {
		switch contentType {
		case "text/plain":
			if result.Text == "" {
				result.Text = readTextLeaf(part, params, contentType)
				return
			}
		case "text/html":
			if result.HTML == "" {
				result.HTML = readTextLeaf(part, params, contentType)
				return
			}
		}
		if contentType != "" && !strings.HasPrefix(contentType, "text/") {
			isAttachment = true
		}
	}

	if !isAttachment {
		return
	}

	content, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))

	filename = DecodeWord(filename)
	if filename == "" {
		filename = "attachment"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	encoding := strings.ToLower(part.Header.Get("Content-Transfer-Encoding"))
	if encoding == "" {
		encoding = "7bit"
	}

	result.HasAttachments = true
	result.Attachments = append(result.Attachments, AttachmentInfo{
		Filename: filename,
		MIMEType: contentType,
		Size:     len(content),
		PartID:   path,
		Encoding: encoding,
	})
}

func readTextLeaf(part *gomessage.Entity, params map[string]string, contentType string) string {
	body, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
	if err != nil && len(body) == 0 {
		return ""
	}

	cs := params["charset"]
	if cs == "" && contentType == "text/html" {
		cs = extractCharsetFromHTML(body)
	}
	return DecodeCharset(body, cs)
}

