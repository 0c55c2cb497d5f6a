package peerstore

import "encoding/base64"

func encodeToken(blob []byte) string {
	return base64.StdEncoding.EncodeToString(blob)
}

func decodeToken(token string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(token)
}
