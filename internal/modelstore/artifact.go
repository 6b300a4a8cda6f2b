package modelstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/bayes"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/goccy/go-json"
)

// Artifact layout: a fixed 32-byte little-endian header followed by a JSON
// payload.
//
//	0:4   magic "CCNB"
//	4:8   format version
//	8:16  created at, unix nanoseconds
//	16:24 payload size
//	24:28 crc32 (IEEE) of the payload
//	28:32 reserved
const (
	MagicBytes    uint32 = 0x43434E42
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
)

// payload is the JSON body of an artifact.
type payload struct {
	Version        string                      `json:"version"`
	Classifier     string                      `json:"classifier"`
	Smoothing      float64                     `json:"smoothing"`
	Labels         []string                    `json:"labels"`
	TotalDocuments int                         `json:"total_documents"`
	Stats          map[string]bayes.LabelStats `json:"stats"`
}

const classifierKind = "multinomial_naive_bayes"

func encode(snap *Snapshot) ([]byte, error) {
	m := snap.Model
	p := payload{
		Version:        snap.Version,
		Classifier:     classifierKind,
		Smoothing:      m.Smoothing(),
		Labels:         m.Labels(),
		TotalDocuments: m.TotalDocuments(),
		Stats:          make(map[string]bayes.LabelStats, len(m.Labels())),
	}
	for _, label := range p.Labels {
		p.Stats[label], _ = m.Stats(label)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling model payload: %w", err)
	}
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(snap.TrainedAt.UnixNano()))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(body)))
	binary.LittleEndian.PutUint32(buf[24:28], crc32.ChecksumIEEE(body))
	copy(buf[HeaderSize:], body)
	return buf, nil
}

func decode(data []byte) (*Snapshot, error) {
	if len(data) < HeaderSize {
		return nil, corrupt("file is %d bytes, shorter than header", len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != MagicBytes {
		return nil, corrupt("bad magic bytes %x", magic)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return nil, corrupt("unsupported format version %d", v)
	}
	createdAt := int64(binary.LittleEndian.Uint64(data[8:16]))
	size := binary.LittleEndian.Uint64(data[16:24])
	body := data[HeaderSize:]
	if uint64(len(body)) != size {
		return nil, corrupt("payload is %d bytes, header says %d", len(body), size)
	}
	if sum := crc32.ChecksumIEEE(body); sum != binary.LittleEndian.Uint32(data[24:28]) {
		return nil, corrupt("checksum mismatch")
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, corrupt("parsing payload: %v", err)
	}
	if p.Classifier != classifierKind {
		return nil, corrupt("unknown classifier %q", p.Classifier)
	}
	model, err := bayes.FromParts(p.Smoothing, p.Stats)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	labels := append([]string(nil), p.Labels...)
	sort.Strings(labels)
	if !equalStrings(labels, model.Labels()) {
		return nil, corrupt("label list does not match statistics")
	}
	if p.TotalDocuments != model.TotalDocuments() {
		return nil, corrupt("total documents %d does not match statistics %d", p.TotalDocuments, model.TotalDocuments())
	}
	if !model.Trained() {
		return nil, corrupt("artifact holds no labels")
	}
	return &Snapshot{
		Model:     model,
		Version:   p.Version,
		TrainedAt: time.Unix(0, createdAt).UTC(),
	}, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrArtifactCorrupt, fmt.Sprintf(format, args...))
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
