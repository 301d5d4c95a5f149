package models

import "tripcore.ridepulse.org/internal/clock"

// ResponseModel is the REST envelope shared by every JSON endpoint.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Data        any    `json:"data,omitempty"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

// ResponseCurrentTime returns the envelope timestamp for the given clock.
func ResponseCurrentTime(c clock.Clock) int64 {
	if c == nil {
		return 0
	}
	return c.NowUnixMilli()
}

// NewOKResponse wraps data in a 200 envelope.
func NewOKResponse(c clock.Clock, data any) ResponseModel {
	return ResponseModel{
		Code:        200,
		CurrentTime: ResponseCurrentTime(c),
		Data:        data,
		Text:        "OK",
		Version:     2,
	}
}
