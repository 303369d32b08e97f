package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// ErrUnknownCompressionID is a decode error: the frame referenced a
// compressed ref/manifest id this side never advertised.
var ErrUnknownCompressionID = errors.New("artery: unknown compression id")

// ErrUnsupportedWireVersion is a decode error for a frame whose version
// byte this decoder does not understand.
var ErrUnsupportedWireVersion = errors.New("artery: unsupported wire version")

const wireVersion uint8 = 0

const (
	flagCompressedManifest  uint8 = 1 << 0
	flagCompressedRecipient uint8 = 1 << 1
)

// OutboundCompression substitutes a recipient ref or class manifest with
// a small integer id the peer previously advertised understanding, the
// way ActorRefCompressionAdvertisement/ClassManifestCompressionAdvertisement
// populate it (spec §4.8). Its internals are out of scope; the core only
// needs this lookup contract.
type OutboundCompression interface {
	CompressRef(ref string) (int32, bool)
	CompressManifest(manifest string) (int32, bool)
}

// InboundCompression reverses OutboundCompression's substitution for
// frames this side receives.
type InboundCompression interface {
	DecompressRef(id int32) (string, bool)
	DecompressManifest(id int32) (string, bool)
}

// compressionTable is the default growable OutboundCompression/
// InboundCompression implementation, populated by the ControlJunction's
// compression observer.
type compressionTable struct {
	mu        sync.RWMutex
	refs      map[string]int32
	manifests map[string]int32
	refsInv   map[int32]string
	manInv    map[int32]string
}

func newCompressionTable() *compressionTable {
	return &compressionTable{
		refs:      make(map[string]int32),
		manifests: make(map[string]int32),
		refsInv:   make(map[int32]string),
		manInv:    make(map[int32]string),
	}
}

func (t *compressionTable) AdvertiseRef(ref string, id int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[ref] = id
	t.refsInv[id] = ref
}

func (t *compressionTable) AdvertiseManifest(manifest string, id int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifests[manifest] = id
	t.manInv[id] = manifest
}

func (t *compressionTable) CompressRef(ref string) (int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.refs[ref]
	return id, ok
}

func (t *compressionTable) CompressManifest(manifest string) (int32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.manifests[manifest]
	return id, ok
}

func (t *compressionTable) DecompressRef(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.refsInv[id]
	return v, ok
}

func (t *compressionTable) DecompressManifest(id int32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.manInv[id]
	return v, ok
}

// noopOutboundCompression never finds a mapping; installed on a quarantined
// AssociationState per spec §3 ("outbound_compression is the sentinel").
type noopOutboundCompression struct{}

func (noopOutboundCompression) CompressRef(string) (int32, bool)      { return 0, false }
func (noopOutboundCompression) CompressManifest(string) (int32, bool) { return 0, false }

var noopCompression OutboundCompression = noopOutboundCompression{}

// passthroughInboundCompression serves control-stream frames that arrive
// before any Association/UID mapping exists for the sender, so the
// Decoder always has a table to call even pre-handshake.
type passthroughInboundCompression struct{}

func (passthroughInboundCompression) DecompressRef(int32) (string, bool)      { return "", false }
func (passthroughInboundCompression) DecompressManifest(int32) (string, bool) { return "", false }

var passthroughCompression InboundCompression = passthroughInboundCompression{}

// DecodedFrame is the Decoder's output: the framing fields plus the
// payload remainder, before any application-level deserialization.
type DecodedFrame struct {
	UID        types.UID
	Serializer int32
	Sender     string
	Recipient  string
	Manifest   string
	Payload    []byte
}

// Encoder writes the wire framing of spec §6, consulting outbound to
// substitute recipient/manifest strings with advertised ids.
type Encoder struct{}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Encode(uid types.UID, serializer int32, sender, recipient, manifest string, payload []byte, outbound OutboundCompression) ([]byte, error) {
	var buf bytes.Buffer
	var flags uint8

	recipientID, recipientCompressed := outbound.CompressRef(recipient)
	if recipientCompressed {
		flags |= flagCompressedRecipient
	}
	manifestID, manifestCompressed := outbound.CompressManifest(manifest)
	if manifestCompressed {
		flags |= flagCompressedManifest
	}

	buf.WriteByte(wireVersion)
	buf.WriteByte(flags)
	if err := binary.Write(&buf, binary.BigEndian, uid); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, serializer); err != nil {
		return nil, err
	}
	if err := writeString(&buf, sender); err != nil {
		return nil, err
	}
	if recipientCompressed {
		if err := binary.Write(&buf, binary.BigEndian, recipientID); err != nil {
			return nil, err
		}
	} else if err := writeString(&buf, recipient); err != nil {
		return nil, err
	}
	if manifestCompressed {
		if err := binary.Write(&buf, binary.BigEndian, manifestID); err != nil {
			return nil, err
		}
	} else if err := writeString(&buf, manifest); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decoder reverses Encoder.Encode. lookup resolves the InboundCompression
// table for the frame's originating UID; it is called after the uid field
// is parsed so the right table is used even when the sender is not yet
// the current argument of any caller-held Association.
type Decoder struct{}

func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) Decode(frame []byte, lookup func(types.UID) InboundCompression) (*DecodedFrame, error) {
	r := bytes.NewReader(frame)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("artery: decode version: %w", err)
	}
	if version != wireVersion {
		return nil, ErrUnsupportedWireVersion
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("artery: decode flags: %w", err)
	}
	var uid uint64
	if err := binary.Read(r, binary.BigEndian, &uid); err != nil {
		return nil, fmt.Errorf("artery: decode uid: %w", err)
	}
	var serializer int32
	if err := binary.Read(r, binary.BigEndian, &serializer); err != nil {
		return nil, fmt.Errorf("artery: decode serializer: %w", err)
	}

	inbound := lookup(uid)
	if inbound == nil {
		inbound = passthroughCompression
	}

	sender, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("artery: decode sender: %w", err)
	}

	recipient, err := decodeRefField(r, flags&flagCompressedRecipient != 0, inbound.DecompressRef)
	if err != nil {
		return nil, err
	}
	manifest, err := decodeRefField(r, flags&flagCompressedManifest != 0, inbound.DecompressManifest)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, r.Len())
	if _, err := r.Read(payload); err != nil && r.Len() != 0 {
		return nil, fmt.Errorf("artery: decode payload: %w", err)
	}

	return &DecodedFrame{
		UID:        uid,
		Serializer: serializer,
		Sender:     sender,
		Recipient:  recipient,
		Manifest:   manifest,
		Payload:    payload,
	}, nil
}

func decodeRefField(r *bytes.Reader, compressed bool, resolve func(int32) (string, bool)) (string, error) {
	if !compressed {
		return readString(r)
	}
	var id int32
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return "", fmt.Errorf("artery: decode compressed id: %w", err)
	}
	v, ok := resolve(id)
	if !ok {
		return "", ErrUnknownCompressionID
	}
	return v, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, int32(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("artery: negative string length %d", n)
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(out); err != nil {
			return "", err
		}
	}
	return string(out), nil
}

// encodeControl serializes a ControlMessage for the control stream.
func encodeControl(msg types.ControlMessage) ([]byte, error) {
	return json.Marshal(controlEnvelope{Kind: controlKind(msg), Body: msg})
}

// decodeControl reverses encodeControl.
func decodeControl(data []byte) (types.ControlMessage, error) {
	var env controlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	target, err := newControlMessage(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Body, target); err != nil {
		return nil, err
	}
	return dereferenceControl(target), nil
}

type controlEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func controlKind(msg types.ControlMessage) string {
	switch msg.(type) {
	case types.HandshakeReq:
		return "handshake_req"
	case types.HandshakeRsp:
		return "handshake_rsp"
	case types.Quarantined:
		return "quarantined"
	case types.ActorRefCompressionAdvertisement:
		return "ref_compression"
	case types.ClassManifestCompressionAdvertisement:
		return "manifest_compression"
	case types.SystemMessageEnvelope:
		return "sysmsg"
	case types.SystemMessageAck:
		return "sysmsg_ack"
	case types.SystemMessageNack:
		return "sysmsg_nack"
	default:
		return "unknown"
	}
}

func newControlMessage(kind string) (interface{}, error) {
	switch kind {
	case "handshake_req":
		return &types.HandshakeReq{}, nil
	case "handshake_rsp":
		return &types.HandshakeRsp{}, nil
	case "quarantined":
		return &types.Quarantined{}, nil
	case "ref_compression":
		return &types.ActorRefCompressionAdvertisement{}, nil
	case "manifest_compression":
		return &types.ClassManifestCompressionAdvertisement{}, nil
	case "sysmsg":
		return &types.SystemMessageEnvelope{}, nil
	case "sysmsg_ack":
		return &types.SystemMessageAck{}, nil
	case "sysmsg_nack":
		return &types.SystemMessageNack{}, nil
	default:
		return nil, fmt.Errorf("artery: unknown control kind %q", kind)
	}
}

func dereferenceControl(v interface{}) types.ControlMessage {
	switch m := v.(type) {
	case *types.HandshakeReq:
		return *m
	case *types.HandshakeRsp:
		return *m
	case *types.Quarantined:
		return *m
	case *types.ActorRefCompressionAdvertisement:
		return *m
	case *types.ClassManifestCompressionAdvertisement:
		return *m
	case *types.SystemMessageEnvelope:
		return *m
	case *types.SystemMessageAck:
		return *m
	case *types.SystemMessageNack:
		return *m
	default:
		return nil
	}
}
