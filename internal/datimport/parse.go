package datimport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// DAT exports use ASCII 0x01 as the field delimiter, one record per line.
const fieldDelimiter = "\x01"

const fieldCount = 11

// ParseLine decodes one DAT export line into a file record in pending state.
// Field layout:
//
//	0  imagefileid
//	1  filename
//	2  filesize
//	3  file type
//	4  is_main_text (0/1)
//	5  is_archive (0/1)
//	6  attachment ids, comma separated
//	7  business category
//	8  storage token
//	9  decrypt code
//	10 export date (2006-01-02)
func ParseLine(line string) (*domain.FileRecord, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), fieldDelimiter)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", fieldCount, len(fields))
	}

	fileID := strings.TrimSpace(fields[0])
	if fileID == "" {
		return nil, fmt.Errorf("empty imagefileid")
	}
	filename := strings.TrimSpace(fields[1])
	if filename == "" {
		return nil, fmt.Errorf("empty filename for %s", fileID)
	}

	size, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad filesize for %s: %w", fileID, err)
	}

	category := domain.BusinessCategory(strings.TrimSpace(fields[7]))
	if !category.Valid() {
		return nil, fmt.Errorf("unknown business category %q for %s", fields[7], fileID)
	}

	token := strings.TrimSpace(fields[8])
	if token == "" {
		return nil, fmt.Errorf("empty storage token for %s", fileID)
	}

	var attachments []string
	if raw := strings.TrimSpace(fields[6]); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				attachments = append(attachments, id)
			}
		}
	}

	var syncAt *time.Time
	if raw := strings.TrimSpace(fields[10]); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			syncAt = &t
		}
	}

	return &domain.FileRecord{
		ImageFileID:   fileID,
		Filename:      filename,
		FileType:      strings.TrimSpace(fields[3]),
		IsMainText:    fields[4] == "1",
		IsArchive:     fields[5] == "1",
		AttachmentIDs: attachments,
		Category:      category,
		FileSize:      size,
		StorageToken:  token,
		DecryptCode:   strings.TrimSpace(fields[9]),
		Status:        domain.StatusPending,
		SyncSource:    "dat",
		LastSyncAt:    syncAt,
	}, nil
}
