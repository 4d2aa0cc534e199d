package dsdiff

import (
	"fmt"

	"github.com/kelindar/dsdpipe/internal/chunk"
	"github.com/kelindar/dsdpipe/internal/marker"
	"github.com/kelindar/dsdpipe/internal/stream"
)

// parseFile walks the top-level FRM8 body and populates h from an already
// opened stream positioned at offset 0.
func parseFile(h *Handle) error {
	s := h.s

	top, err := chunk.ReadHeader(s)
	if err != nil {
		return err
	}
	if top.Tag != "FRM8" {
		return fmt.Errorf("%w: missing FRM8 top container", ErrInvalidFile)
	}
	bodyEnd := s.Pos() + int64(top.Size)

	formType, err := s.ReadTag()
	if err != nil {
		return err
	}
	if formType != "DSD " {
		return fmt.Errorf("%w: unexpected form type %q", ErrInvalidFile, formType)
	}

	var (
		sawFVER, sawPROP, sawCOMT, sawDIIN, sawSound bool
		diinOccurrence                                int
	)

	for s.Pos() < bodyEnd {
		hdr, err := chunk.ReadHeader(s)
		if err != nil {
			return err
		}
		childStart := s.Pos()

		switch hdr.Tag {
		case "FVER":
			if sawFVER {
				return fmt.Errorf("%w: duplicate FVER", ErrInvalidChunk)
			}
			sawFVER = true
			raw, err := s.ReadU32()
			if err != nil {
				return err
			}
			h.version = versionFromU32(raw)
			if h.version.Major != 1 {
				return fmt.Errorf("%w: major version %d", ErrInvalidVersion, h.version.Major)
			}

		case "PROP":
			if sawPROP {
				return fmt.Errorf("%w: duplicate PROP", ErrInvalidChunk)
			}
			sawPROP = true
			h.propSize = hdr.Size
			if err := h.parsePROP(childStart, childStart+int64(hdr.Size)); err != nil {
				return err
			}

		case "DSD ":
			if sawSound {
				return fmt.Errorf("%w: multiple sound chunks", ErrInvalidChunk)
			}
			sawSound = true
			h.isDST = false
			h.soundHdrPos = childStart - 12
			h.soundStart = childStart
			h.soundDataSize = hdr.Size
			h.soundEnd = childStart + int64(hdr.Size)

		case "DST ":
			if sawSound {
				return fmt.Errorf("%w: multiple sound chunks", ErrInvalidChunk)
			}
			sawSound = true
			h.isDST = true
			h.soundHdrPos = childStart - 12
			h.soundStart = childStart
			h.soundDataSize = hdr.Size
			h.soundEnd = childStart + int64(hdr.Size)
			if err := h.parseDSTContainer(childStart, h.soundEnd); err != nil {
				return err
			}

		case "DSTI":
			h.dstiPos = childStart - 12
			if err := h.parseDSTI(hdr.Size); err != nil {
				return err
			}

		case "COMT":
			if sawCOMT {
				return fmt.Errorf("%w: duplicate COMT", ErrInvalidChunk)
			}
			sawCOMT = true
			h.commentsPos = childStart - 12
			if err := h.parseCOMT(hdr.Size); err != nil {
				return err
			}

		case "ID3 ":
			blob, err := s.ReadBytes(int(hdr.Size))
			if err != nil {
				return err
			}
			if h.fileID3 == nil && !h.hasFileID3 {
				h.hasFileID3 = true
				h.fileID3 = blob
				h.fileID3Pos = childStart - 12
			} else {
				idx := len(h.trackID3)
				h.growTrackID3(idx + 1)
				h.trackID3[idx] = trackID3Entry{present: true, data: blob}
				if h.trackID3Pos == 0 {
					h.trackID3Pos = childStart - 12
				}
			}

		case "MANF":
			h.hasManufacturer = true
			h.manufacturerPos = childStart - 12
			idBytes, err := s.ReadBytes(4)
			if err != nil {
				return err
			}
			copy(h.manufacturerID[:], idBytes)
			blob, err := s.ReadBytes(int(hdr.Size) - 4)
			if err != nil {
				return err
			}
			h.manufacturer = blob

		case "DIIN":
			if sawDIIN {
				return fmt.Errorf("%w: duplicate DIIN", ErrInvalidChunk)
			}
			sawDIIN = true
			h.diinPos = childStart - 12
			diinOccurrence++
			if err := h.parseDIIN(childStart, childStart+int64(hdr.Size)); err != nil {
				return err
			}

		default:
			if err := chunk.Skip(s, hdr); err != nil {
				return err
			}
			continue
		}

		if err := s.ReadPad(hdr.Size); err != nil {
			return err
		}
	}

	if h.hasIndex {
		h.rebuildOffsetIndex()
	}
	if !sawFVER {
		return fmt.Errorf("%w: missing FVER", ErrInvalidFile)
	}
	if !sawSound {
		return fmt.Errorf("%w: missing sound chunk", ErrInvalidFile)
	}
	return nil
}

// parsePROP walks the PROP inner form: exactly one FS/CHNL/CMPR, at most
// one ABSS/LSCO.
func (h *Handle) parsePROP(start, end int64) error {
	s := h.s
	formType, err := s.ReadTag()
	if err != nil {
		return err
	}
	if formType != "SND " {
		return fmt.Errorf("%w: PROP form type %q", ErrInvalidChunk, formType)
	}

	var sawFS, sawCHNL, sawCMPR, sawABSS, sawLSCO bool
	for s.Pos() < end {
		hdr, err := chunk.ReadHeader(s)
		if err != nil {
			return err
		}
		pos := s.Pos()
		switch hdr.Tag {
		case "FS":
			sawFS = true
			rate, err := s.ReadU32()
			if err != nil {
				return err
			}
			h.sampleRate = rate
		case "CHNL":
			sawCHNL = true
			h.chnlPos = pos - 12
			count, err := s.ReadU16()
			if err != nil {
				return err
			}
			h.channels = int(count)
			ids := make([]int, count)
			for i := range ids {
				tag, err := s.ReadTag()
				if err != nil {
					return err
				}
				id, err := chunk.DecodeChannelID(tag)
				if err != nil {
					return err
				}
				ids[i] = id
			}
			h.channelIDs = ids
		case "CMPR":
			sawCMPR = true
			tag, err := s.ReadTag()
			if err != nil {
				return err
			}
			if tag != "DSD " && tag != "DST " {
				return fmt.Errorf("%w: compression tag %q", ErrUnsupportedCompr, tag)
			}
			h.compression = tag
			if _, err := s.ReadPstring(); err != nil {
				return err
			}
		case "ABSS":
			if sawABSS {
				return fmt.Errorf("%w: duplicate ABSS", ErrInvalidChunk)
			}
			sawABSS = true
			h.hasTimecode = true
			h.timecodePos = pos - 12
			hh, err := s.ReadU16()
			if err != nil {
				return err
			}
			mm, err := s.ReadU8()
			if err != nil {
				return err
			}
			ss, err := s.ReadU8()
			if err != nil {
				return err
			}
			samples, err := s.ReadU32()
			if err != nil {
				return err
			}
			h.timecode = timecodeOf(hh, mm, ss, samples)
		case "LSCO":
			if sawLSCO {
				return fmt.Errorf("%w: duplicate LSCO", ErrInvalidChunk)
			}
			sawLSCO = true
			h.hasLSConfig = true
			h.lsConfigPos = pos - 12
			cfg, err := s.ReadU16()
			if err != nil {
				return err
			}
			h.lsConfig = cfg
		default:
			if err := chunk.Skip(s, hdr); err != nil {
				return err
			}
			continue
		}
		if err := s.ReadPad(hdr.Size); err != nil {
			return err
		}
	}

	if !sawFS || !sawCHNL || !sawCMPR {
		return fmt.Errorf("%w: PROP missing required FS/CHNL/CMPR", ErrInvalidFile)
	}
	return nil
}

// parseDSTContainer walks a DST sound chunk's body: FRTE, then one DSTF per
// frame (each optionally followed by a DSTC), recording the in-memory index
// as it goes so a freshly opened (not-yet-DSTI-bearing) file can still seek
// by frame.
func (h *Handle) parseDSTContainer(start, end int64) error {
	s := h.s
	hdr, err := chunk.ReadHeader(s)
	if err != nil {
		return err
	}
	if hdr.Tag != "FRTE" {
		return fmt.Errorf("%w: DST container missing FRTE", ErrInvalidFile)
	}
	frameCount, err := s.ReadU32()
	if err != nil {
		return err
	}
	frameRate, err := s.ReadU16()
	if err != nil {
		return err
	}
	h.frameCount = uint64(frameCount)
	h.dstFrameRate = frameRate
	if err := s.ReadPad(hdr.Size); err != nil {
		return err
	}

	for s.Pos() < end {
		fhdr, err := chunk.ReadHeader(s)
		if err != nil {
			return err
		}
		if fhdr.Tag == "DSTF" {
			h.index = append(h.index, IndexEntry{Offset: uint64(s.Pos()), Length: uint32(fhdr.Size)})
			if _, err := s.Seek(int64(fhdr.Size), stream.Cur); err != nil {
				return err
			}
			if err := s.ReadPad(fhdr.Size); err != nil {
				return err
			}
			continue
		}
		if fhdr.Tag == "DSTC" {
			h.hasCRC = true
			h.crcSize = int(fhdr.Size)
			if _, err := s.Seek(int64(fhdr.Size), stream.Cur); err != nil {
				return err
			}
			if err := s.ReadPad(fhdr.Size); err != nil {
				return err
			}
			continue
		}
		// Any other chunk ends the DST payload region for our purposes;
		// caller's outer loop will pick it up after we return.
		if _, err := s.Seek(-12, stream.Cur); err != nil {
			return err
		}
		break
	}
	h.dstDataEnd = s.Pos()
	if len(h.index) > 0 {
		h.hasIndex = true
	}
	return nil
}

func (h *Handle) parseDSTI(size uint64) error {
	s := h.s
	n := int(size / 12)
	h.index = make([]IndexEntry, n)
	for i := 0; i < n; i++ {
		off, err := s.ReadU64()
		if err != nil {
			return err
		}
		length, err := s.ReadU32()
		if err != nil {
			return err
		}
		h.index[i] = IndexEntry{Offset: off, Length: length}
	}
	h.hasIndex = true
	return nil
}

func (h *Handle) parseCOMT(size uint64) error {
	s := h.s
	count, err := s.ReadU16()
	if err != nil {
		return err
	}
	h.comments = make([]Comment, 0, count)
	for i := 0; i < int(count); i++ {
		year, err := s.ReadU16()
		if err != nil {
			return err
		}
		month, err := s.ReadU8()
		if err != nil {
			return err
		}
		day, err := s.ReadU8()
		if err != nil {
			return err
		}
		hour, err := s.ReadU8()
		if err != nil {
			return err
		}
		minute, err := s.ReadU8()
		if err != nil {
			return err
		}
		typ, err := s.ReadU16()
		if err != nil {
			return err
		}
		ref, err := s.ReadU16()
		if err != nil {
			return err
		}
		length, err := s.ReadU32()
		if err != nil {
			return err
		}
		text, err := s.ReadFixedString(int(length))
		if err != nil {
			return err
		}
		if err := s.ReadPad(uint64(length)); err != nil {
			return err
		}
		h.comments = append(h.comments, Comment{
			Year: year, Month: uint16(month), Day: uint16(day),
			Hour: uint16(hour), Minute: uint16(minute),
			Type: typ, Ref: ref, Text: text,
		})
	}
	h.hasComments = len(h.comments) > 0
	return nil
}

func (h *Handle) parseDIIN(start, end int64) error {
	s := h.s
	for s.Pos() < end {
		hdr, err := chunk.ReadHeader(s)
		if err != nil {
			return err
		}
		switch hdr.Tag {
		case "EMID":
			text, err := s.ReadFixedString(int(hdr.Size))
			if err != nil {
				return err
			}
			h.hasEMID, h.emid = true, text
		case "DIAR":
			text, err := h.readLengthPrefixedText()
			if err != nil {
				return err
			}
			h.hasArtist, h.artist = true, text
		case "DITI":
			text, err := h.readLengthPrefixedText()
			if err != nil {
				return err
			}
			h.hasTitle, h.title = true, text
		case "MARK":
			if err := h.parseMarkRecord(hdr.Size); err != nil {
				return err
			}
		default:
			if err := chunk.Skip(s, hdr); err != nil {
				return err
			}
			continue
		}
		if err := s.ReadPad(hdr.Size); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handle) parseMarkRecord(size uint64) error {
	s := h.s
	hh, err := s.ReadU16()
	if err != nil {
		return err
	}
	mm, err := s.ReadU8()
	if err != nil {
		return err
	}
	ss, err := s.ReadU8()
	if err != nil {
		return err
	}
	samples, err := s.ReadU32()
	if err != nil {
		return err
	}
	offset, err := s.ReadU32()
	if err != nil {
		return err
	}
	markType, err := s.ReadU16()
	if err != nil {
		return err
	}
	channel, err := s.ReadU16()
	if err != nil {
		return err
	}
	trackFlags, err := s.ReadU16()
	if err != nil {
		return err
	}
	count, err := s.ReadU32()
	if err != nil {
		return err
	}
	text, err := s.ReadFixedString(int(count))
	if err != nil {
		return err
	}

	h.markers.Add(&marker.Marker{
		Time:    timecodeOf(hh, mm, ss, samples),
		Offset:  int32(offset),
		Kind:    markerKindOf(markType),
		Channel: channel,
		Track:   trackFlags,
		Text:    text,
	})
	h.hasMarkers = true
	return nil
}

// readLengthPrefixedText reads a u32 byte count followed by that many bytes
// of text, the framing DIAR/DITI use for their length-prefixed UTF-8 text.
func (h *Handle) readLengthPrefixedText() (string, error) {
	length, err := h.s.ReadU32()
	if err != nil {
		return "", err
	}
	return h.s.ReadFixedString(int(length))
}

func timecodeOf(hh uint16, mm, ss uint8, samples uint32) marker.Timecode {
	return marker.Timecode{Hours: hh, Minutes: mm, Seconds: ss, Samples: samples}
}

func markerKindOf(raw uint16) marker.Kind {
	switch raw {
	case 1:
		return marker.TrackStart
	case 2:
		return marker.TrackEnd
	case 3:
		return marker.Index
	case 4:
		return marker.Loop
	default:
		return marker.Generic
	}
}

func markerKindToRaw(k marker.Kind) uint16 {
	switch k {
	case marker.TrackStart:
		return 1
	case marker.TrackEnd:
		return 2
	case marker.Index:
		return 3
	case marker.Loop:
		return 4
	default:
		return 0
	}
}
