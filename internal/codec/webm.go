package codec

import "bytes"

// buildInitSegment writes the EBML header plus a Segment containing only
// Info and Tracks: the portion of a WebM stream a player needs once,
// before any media data. Callers append Clusters produced by
// buildCluster to this for subsequent chunks of the same stream.
func buildInitSegment(sampleRate, channels int) []byte {
	ebmlHeader := element(idEBML, concatBytes(
		uintElement(idEBMLVersion, 1),
		stringElement(idDocType, "webm"),
	))

	info := element(idInfo, uintElement(idTimecodeScale, 1000000))

	audio := element(idAudio, concatBytes(
		floatElement(idSamplingFreq, float64(sampleRate)),
		uintElement(idChannels, uint64(channels)),
	))

	trackEntry := element(idTrackEntry, concatBytes(
		uintElement(idTrackNumber, 1),
		uintElement(idTrackUID, 1),
		uintElement(idTrackType, 2), // 2 = audio
		stringElement(idCodecID, "A_OPUS"),
		audio,
	))

	tracks := element(idTracks, trackEntry)

	segmentBody := concatBytes(info, tracks)

	// The Segment carries the EBML "unknown size" marker so that Clusters
	// appended after it still belong to it.
	var segment bytes.Buffer

	writeID(&segment, idSegment)
	segment.Write([]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	segment.Write(segmentBody)

	return concatBytes(ebmlHeader, segment.Bytes())
}

// buildCluster wraps one group of Opus packets in a Cluster element,
// each packet framed as a SimpleBlock on track 1 at a relative timecode
// that advances by frameDurationMS per packet. timecodeStart is in
// milliseconds, matching the Info TimecodeScale of 1000000ns = 1ms.
func buildCluster(packets [][]byte, timecodeStart int64, frameDurationMS int64) []byte {
	var body []byte

	body = append(body, uintElement(idTimecode, uint64(timecodeStart))...)

	for i, packet := range packets {
		relativeTimecode := int16(int64(i) * frameDurationMS)
		body = append(body, simpleBlock(packet, relativeTimecode)...)
	}

	return element(idCluster, body)
}

// simpleBlock frames one Opus packet for track 1 at the given relative
// (signed, 16-bit) timecode, per the Matroska SimpleBlock layout: track
// number (vint) + 2-byte signed timecode + 1 flags byte + payload.
func simpleBlock(payload []byte, relativeTimecode int16) []byte {
	body := make([]byte, 0, 4+len(payload))
	body = append(body, encodeVint(1, 0)...) // track number 1
	body = append(body, byte(relativeTimecode>>8), byte(relativeTimecode))
	body = append(body, 0x80) // flags: keyframe
	body = append(body, payload...)

	return element(idSimpleBlock, body)
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}
