package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/cleanroom/internal/hasher"
	"github.com/hitoshi/cleanroom/internal/model"
	"github.com/hitoshi/cleanroom/internal/security"
)

// ErrInvalidRecord は取り込みファイルのレコードが不正な場合のエラー。
var ErrInvalidRecord = errors.New("invalid identifier record")

// recordFile は取り込みファイルのYAML表現。
//
//	segment_a:
//	  - raw_identifier: user1001@example.com
//	    attribute_tag: sports
//	segment_b:
//	  - raw_identifier: user2002@example.com
type recordFile struct {
	SegmentA []fileRecord `yaml:"segment_a"`
	SegmentB []fileRecord `yaml:"segment_b"`
}

type fileRecord struct {
	RawIdentifier string `yaml:"raw_identifier"`
	AttributeTag  string `yaml:"attribute_tag"`
}

// LoadRecords は外部から提供された識別子ファイルを読み込み、セグメントA・Bのレコードを返す。
// 属性ラベルはマークアップを除去してから保持する。
// 識別子が空の場合やマークアップを含む場合はErrInvalidRecordを返し、1件も返さない。
func LoadRecords(r io.Reader, sanitizer security.TextSanitizerService) (a, b []*model.IdentifierRecord, err error) {
	var file recordFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to decode identifier file: %w", err)
	}

	a, err = toRecords(model.SegmentA, file.SegmentA, sanitizer)
	if err != nil {
		return nil, nil, err
	}
	b, err = toRecords(model.SegmentB, file.SegmentB, sanitizer)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func toRecords(segment model.SegmentName, entries []fileRecord, sanitizer security.TextSanitizerService) ([]*model.IdentifierRecord, error) {
	records := make([]*model.IdentifierRecord, 0, len(entries))
	for i, e := range entries {
		raw := strings.TrimSpace(e.RawIdentifier)
		if raw == "" {
			return nil, fmt.Errorf("%w: segment %s entry %d: raw_identifier is empty", ErrInvalidRecord, segment, i)
		}
		// ハッシュ値が変わるため、識別子は書き換えずに拒否する
		if sanitizer.Sanitize(raw) != raw {
			return nil, fmt.Errorf("%w: segment %s entry %d: raw_identifier contains markup", ErrInvalidRecord, segment, i)
		}

		records = append(records, &model.IdentifierRecord{
			RawIdentifier:    raw,
			HashedIdentifier: hasher.HashIdentifier(raw),
			AttributeTag:     sanitizer.Sanitize(e.AttributeTag),
		})
	}
	return records, nil
}
