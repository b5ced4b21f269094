package pg2arrow

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
)

// Message is one decoded entry from an ArrowFile's sequence of framed
// messages: its header type, the decoded header table (Schema,
// RecordBatch or DictionaryBatch), and its position in the file. Per
// §4.7, only metadata is decoded; message bodies are never read here.
type Message struct {
	HeaderType byte
	Header     *FBTable
	Offset     int64
	BodyLength int64
}

// ArrowFile is a read-only, memory-mapped view of an on-disk Arrow IPC
// File: the decoded Schema, the sequence of messages between the
// signature and the Footer, and the Footer's block lists.
type ArrowFile struct {
	f    *os.File
	data []byte

	footerStart int

	Schema        []*Column
	Messages      []Message
	Dictionaries  []Block
	RecordBatches []Block
}

// OpenArrowFile memory-maps path, verifies the leading and trailing
// signatures, and decodes the Schema and every message's metadata plus
// the Footer's block lists.
func OpenArrowFile(path string) (*ArrowFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "open", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Path: path, Op: "stat", Err: err}
	}
	size := info.Size()
	if size < int64(len(fileSignature)) {
		f.Close()
		return nil, fmt.Errorf("pg2arrow: %s is too short to be an Arrow file", path)
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &IOError{Path: path, Op: "mmap", Err: err}
	}

	af := &ArrowFile{f: f, data: data}
	if err := af.parse(); err != nil {
		af.Close()
		return nil, fmt.Errorf("pg2arrow: parsing %s: %w", path, err)
	}
	return af, nil
}

// Close unmaps the file and closes its descriptor.
func (af *ArrowFile) Close() error {
	if af.data != nil {
		syscall.Munmap(af.data)
		af.data = nil
	}
	return af.f.Close()
}

func (af *ArrowFile) parse() error {
	data := af.data
	if string(data[0:8]) != fileSignature {
		return fmt.Errorf("missing ARROW1 signature")
	}
	if len(data) < 10 || string(data[len(data)-6:]) != footerTailSignature {
		return fmt.Errorf("missing trailing ARROW1 signature (truncated file)")
	}

	footerLen := int(binary.LittleEndian.Uint32(data[len(data)-10 : len(data)-6]))
	af.footerStart = len(data) - 10 - footerLen
	if af.footerStart < len(fileSignature) {
		return fmt.Errorf("footer metadata length overruns the file")
	}

	rootOffset := int(binary.LittleEndian.Uint32(data[af.footerStart : af.footerStart+4]))
	footer := FetchFBTable(data, af.footerStart+4+rootOffset)

	if schemaTable, ok := footer.FetchOffset(1); ok {
		af.Schema = DecodeSchema(schemaTable)
	}
	if pos, ok := footer.FetchPackedPos(2); ok {
		af.Dictionaries = DecodeBlockVector(data, pos)
	}
	if pos, ok := footer.FetchPackedPos(3); ok {
		af.RecordBatches = DecodeBlockVector(data, pos)
	}

	return af.readMessages()
}

// readMessages walks every framed message between the signature and
// the Footer, decoding each one's header table without touching its
// body bytes.
func (af *ArrowFile) readMessages() error {
	data := af.data
	pos := len(fileSignature)
	for pos < af.footerStart {
		if pos+8 > af.footerStart {
			return fmt.Errorf("message prelude overruns footer at offset %d", pos)
		}
		metaLength := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		rootOffset := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))

		msgTable := FetchFBTable(data, pos+8+rootOffset)
		headerType := msgTable.FetchByte(1)
		bodyLength := msgTable.FetchInt64(3)

		headerTable, _ := msgTable.FetchOffset(2)
		af.Messages = append(af.Messages, Message{
			HeaderType: headerType,
			Header:     headerTable,
			Offset:     int64(pos),
			BodyLength: bodyLength,
		})

		pos += 4 + metaLength // metaLength field itself plus the {rootOffset, flatbuffer} it counts
		pos += int(bodyLength)
	}
	return nil
}
