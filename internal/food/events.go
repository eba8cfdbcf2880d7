package food

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// RawUploadEvent references the single object an ingestion invocation reads.
type RawUploadEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Validate rejects events that do not name an object.
func (e RawUploadEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.Bucket) == "":
		return &MalformedEventError{Kind: "object-created", Reason: "bucket is empty"}
	case strings.TrimSpace(e.Key) == "":
		return &MalformedEventError{Kind: "object-created", Reason: "key is empty"}
	}
	return nil
}

// s3Notification is the subset of an S3 event notification we consume.
type s3Notification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// DecodeObjectCreated extracts one RawUploadEvent per object-created record
// in an S3 event notification. Object keys arrive URL-encoded and are
// unescaped. Records for other event types are ignored.
func DecodeObjectCreated(payload []byte) ([]RawUploadEvent, error) {
	var n s3Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, &MalformedEventError{Kind: "object-created", Reason: err.Error()}
	}
	if len(n.Records) == 0 {
		return nil, &MalformedEventError{Kind: "object-created", Reason: "no records"}
	}

	events := make([]RawUploadEvent, 0, len(n.Records))
	for i, rec := range n.Records {
		if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, &MalformedEventError{
				Kind:   "object-created",
				Reason: fmt.Sprintf("record %d: bad object key %q: %v", i, rec.S3.Object.Key, err),
			}
		}
		ev := RawUploadEvent{Bucket: rec.S3.Bucket.Name, Key: key}
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// ChangeEvent is the post-write image of one committed item. Optional
// attributes are nil when the image does not carry them.
type ChangeEvent struct {
	EventID        string
	FoodName       string
	ScientificName *string
	Group          *string
	SubGroup       *string
}

// ChangeEventFromImage builds a ChangeEvent from an attribute image. Keys are
// canonicalized, so images written with other casings still resolve.
func ChangeEventFromImage(id string, image map[string]string) ChangeEvent {
	canon := make(map[string]string, len(image))
	for k, v := range image {
		canon[CanonicalField(k)] = v
	}

	opt := func(name string) *string {
		if v, ok := canon[name]; ok {
			return &v
		}
		return nil
	}

	return ChangeEvent{
		EventID:        id,
		FoodName:       canon[FieldFoodName],
		ScientificName: opt(FieldScientificName),
		Group:          opt(FieldGroup),
		SubGroup:       opt(FieldSubGroup),
	}
}

// Validate reports a change image that lacks its key.
func (e ChangeEvent) Validate() error {
	if e.FoodName == "" {
		return &MalformedEventError{Kind: "change", Reason: "image has no food_name"}
	}
	return nil
}

// streamAttribute is a DynamoDB attribute value as serialized in stream records.
type streamAttribute struct {
	S    *string `json:"S"`
	N    *string `json:"N"`
	NULL *bool   `json:"NULL"`
}

type streamRecord struct {
	EventID   string `json:"eventID"`
	EventName string `json:"eventName"`
	DynamoDB  struct {
		NewImage map[string]streamAttribute `json:"NewImage"`
	} `json:"dynamodb"`
}

// DecodeChangeBatch decodes a DynamoDB-stream shaped delivery batch.
//
// Records are decoded independently: a record that cannot be decoded is
// reported in errs and does not prevent the others from being returned.
// REMOVE records carry no new image and are skipped.
func DecodeChangeBatch(payload []byte) (events []ChangeEvent, errs []error) {
	var envelope struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, []error{&MalformedEventError{Kind: "change", Reason: err.Error()}}
	}

	for i, raw := range envelope.Records {
		var rec streamRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			errs = append(errs, &MalformedEventError{
				Kind:   "change",
				Reason: fmt.Sprintf("record %d: %v", i, err),
			})
			continue
		}
		if rec.EventName == "REMOVE" {
			continue
		}

		image := make(map[string]string, len(rec.DynamoDB.NewImage))
		for name, attr := range rec.DynamoDB.NewImage {
			switch {
			case attr.S != nil:
				image[name] = *attr.S
			case attr.N != nil:
				image[name] = *attr.N
			}
		}
		events = append(events, ChangeEventFromImage(rec.EventID, image))
	}
	return events, errs
}
