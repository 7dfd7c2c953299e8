// Package estat talks to the e-Stat style statistics API and decodes its
// irregular JSON payloads into typed structures.
package estat

import (
	"encoding/json"
	"fmt"

	apperrors "macrolink/internal/errors"
)

// Observation is one coded record from the DATA_INF.VALUE array: axis-code
// fields ("@cat01", "@area", "@time", ...) plus the "$" measurement field.
// Scalar values of any JSON type are coerced to string; consumers parse
// what they need.
type Observation map[string]string

// UnmarshalJSON coerces every scalar field to its string form. The API
// emits numbers and strings interchangeably.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Observation, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = trimFloat(val)
		case bool:
			out[k] = fmt.Sprintf("%t", val)
		case nil:
			out[k] = ""
		default:
			// Nested structures never appear in VALUE records; keep the
			// raw JSON so nothing is silently lost.
			b, err := json.Marshal(val)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*o = out
	return nil
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// observationList tolerates the API's single-object-or-list encoding.
type observationList []Observation

func (l *observationList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []Observation
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}

	var single Observation
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = observationList{single}
	return nil
}

// classEntry is one code→label entry inside a classification object.
type classEntry struct {
	Code  string `json:"@code"`
	Name  string `json:"@name"`
	Level string `json:"@level"`
	Unit  string `json:"@unit"`
}

type classEntryList []classEntry

func (l *classEntryList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []classEntry
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}

	var single classEntry
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = classEntryList{single}
	return nil
}

// classObj is one CLASS_OBJ element: an axis with its code→label table.
type classObj struct {
	ID    string         `json:"@id"`
	Name  string         `json:"@name"`
	Class classEntryList `json:"CLASS"`
}

type classObjList []classObj

func (l *classObjList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []classObj
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}

	var single classObj
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = classObjList{single}
	return nil
}

// envelope mirrors the wire format of a getStatsData response.
type envelope struct {
	GetStatsData struct {
		Result struct {
			Status   json.Number `json:"STATUS"`
			ErrorMsg string      `json:"ERROR_MSG"`
		} `json:"RESULT"`
		StatisticalData *struct {
			ClassInf *struct {
				ClassObj classObjList `json:"CLASS_OBJ"`
			} `json:"CLASS_INF"`
			DataInf *struct {
				Value observationList `json:"VALUE"`
			} `json:"DATA_INF"`
		} `json:"STATISTICAL_DATA"`
	} `json:"GET_STATS_DATA"`
}

// StatsPayload is the decoded, shape-validated content of one response:
// the classification metadata and the coded observations.
type StatsPayload struct {
	Classifications ClassificationSet
	Observations    []Observation
}

// decodePayload validates the envelope shape and extracts the payload.
// A non-zero RESULT.STATUS is an upstream API error carrying the code and
// message; missing required substructures are shape errors.
func decodePayload(data []byte) (*StatsPayload, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.New(apperrors.KindShape, "failed to decode statistics API response", err)
	}

	status := env.GetStatsData.Result.Status.String()
	if status == "" {
		return nil, apperrors.NewShapeError("GET_STATS_DATA.RESULT")
	}
	if status != "0" {
		return nil, apperrors.NewUpstreamAPIError(status, env.GetStatsData.Result.ErrorMsg)
	}

	stat := env.GetStatsData.StatisticalData
	if stat == nil {
		return nil, apperrors.NewShapeError("STATISTICAL_DATA")
	}
	if stat.ClassInf == nil {
		return nil, apperrors.NewShapeError("CLASS_INF")
	}
	if stat.DataInf == nil {
		return nil, apperrors.NewShapeError("DATA_INF")
	}
	if len(stat.DataInf.Value) == 0 {
		return nil, apperrors.NewEmptyResultError(
			"statistics API returned zero observations; check category and area filters")
	}

	return &StatsPayload{
		Classifications: newClassificationSet(stat.ClassInf.ClassObj),
		Observations:    stat.DataInf.Value,
	}, nil
}
