package recommender

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
)

// Artifact format: a fixed binary header followed by a gob payload. The
// header is validated before any payload decode so a version or type
// mismatch fails fast instead of producing garbage predictions.
//
//	[0:4]  magic "BNRM"
//	[4:6]  format version, big endian
//	[6]    model type tag (1=svd, 2=knn)
//	[7:]   gob-encoded payload for the tagged type

const artifactVersion uint16 = 1

var artifactMagic = [4]byte{'B', 'N', 'R', 'M'}

var ErrBadArtifact = errors.New("model artifact is not decodable")

const (
	tagSVD byte = 1
	tagKNN byte = 2
)

type svdPayload struct {
	Spec        Spec
	GlobalMean  float64
	Users       []int64
	Items       []string
	UserBias    []float64
	ItemBias    []float64
	UserFactors [][]float64
	ItemFactors [][]float64
}

type knnPayload struct {
	Spec       Spec
	GlobalMean float64
	Users      []int64
	Items      []string
	Ratings    []map[string]float64
	Means      []float64
	Neighbors  [][]neighbor
}

// EncodeModel serializes a fitted engine into a self-describing blob that
// fully reconstructs its inference behavior.
func EncodeModel(engine Engine) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(artifactMagic[:])
	if err := binary.Write(&buf, binary.BigEndian, artifactVersion); err != nil {
		return nil, fmt.Errorf("failed to write artifact header: %w", err)
	}

	switch e := engine.(type) {
	case *svdEngine:
		buf.WriteByte(tagSVD)
		payload := svdPayload{
			Spec:        e.spec,
			GlobalMean:  e.globalMean,
			Users:       e.users,
			Items:       e.items,
			UserBias:    e.userBias,
			ItemBias:    e.itemBias,
			UserFactors: e.userFactors,
			ItemFactors: e.itemFactors,
		}
		if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
			return nil, fmt.Errorf("failed to encode svd payload: %w", err)
		}
	case *knnEngine:
		buf.WriteByte(tagKNN)
		payload := knnPayload{
			Spec:       e.spec,
			GlobalMean: e.globalMean,
			Users:      e.users,
			Items:      e.items,
			Ratings:    e.ratings,
			Means:      e.means,
			Neighbors:  e.neighbors,
		}
		if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
			return nil, fmt.Errorf("failed to encode knn payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedModelType, engine)
	}
	return buf.Bytes(), nil
}

// DecodeModel reconstructs an engine from a serialized artifact. The header
// is checked before the payload is touched.
func DecodeModel(data []byte) (Engine, error) {
	if len(data) < 7 {
		return nil, fmt.Errorf("%w: truncated header", ErrBadArtifact)
	}
	if !bytes.Equal(data[:4], artifactMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadArtifact)
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrBadArtifact, version)
	}

	reader := bytes.NewReader(data[7:])
	switch data[6] {
	case tagSVD:
		var payload svdPayload
		if err := gob.NewDecoder(reader).Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		e := newSVDEngine(payload.Spec)
		e.globalMean = payload.GlobalMean
		e.users = payload.Users
		e.items = payload.Items
		e.userBias = payload.UserBias
		e.itemBias = payload.ItemBias
		e.userFactors = payload.UserFactors
		e.itemFactors = payload.ItemFactors
		e.rebuildIndex()
		return e, nil
	case tagKNN:
		var payload knnPayload
		if err := gob.NewDecoder(reader).Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		e := newKNNEngine(payload.Spec)
		e.globalMean = payload.GlobalMean
		e.users = payload.Users
		e.items = payload.Items
		e.ratings = payload.Ratings
		e.means = payload.Means
		e.neighbors = payload.Neighbors
		e.rebuildIndex()
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown model type tag %d", ErrBadArtifact, data[6])
	}
}

func (e *svdEngine) rebuildIndex() {
	e.userIndex = make(map[int64]int, len(e.users))
	for i, u := range e.users {
		e.userIndex[u] = i
	}
	e.itemIndex = make(map[string]int, len(e.items))
	for i, it := range e.items {
		e.itemIndex[it] = i
	}
}

func (e *knnEngine) rebuildIndex() {
	e.userIndex = make(map[int64]int, len(e.users))
	for i, u := range e.users {
		e.userIndex[u] = i
	}
	e.itemIndex = make(map[string]int, len(e.items))
	for i, it := range e.items {
		e.itemIndex[it] = i
	}
}
