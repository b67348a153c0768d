package axm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
)

// Device fetches one organization device by serial number.
// An unknown serial fails with ErrNotFound.
func (c *Client) Device(ctx context.Context, serial string) (*Resource, error) {
	var doc documentResponse
	if err := c.getJSON(ctx, devicePath(serial), &doc); err != nil {
		return nil, err
	}

	r, err := singleResource(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("axm: device %s: %w", serial, err)
	}

	if r == nil {
		return nil, fmt.Errorf("%w: device %s returned no data", ErrNotFound, serial)
	}

	return r, nil
}

// AssignedServer returns the MDM server a device is assigned to, or
// (nil, nil) when the device is unassigned.
func (c *Client) AssignedServer(ctx context.Context, serial string) (*Resource, error) {
	var doc documentResponse
	if err := c.getJSON(ctx, devicePath(serial)+"/assignedServer", &doc); err != nil {
		return nil, err
	}

	r, err := singleResource(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("axm: assigned server of %s: %w", serial, err)
	}

	return r, nil
}

// AppleCareCoverage returns the coverage records of a device. A device with
// no coverage fails with ErrNoCoverage.
func (c *Client) AppleCareCoverage(ctx context.Context, serial string) ([]Resource, error) {
	var doc documentResponse
	if err := c.getJSON(ctx, devicePath(serial)+"/appleCareCoverage", &doc); err != nil {
		return nil, err
	}

	list, err := decodeResources(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("axm: decoding coverage of %s: %w", serial, err)
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCoverage, serial)
	}

	return list, nil
}

func devicePath(serial string) string {
	return "/orgDevices/" + url.PathEscape(serial)
}

// singleResource decodes a data member that should hold one resource. Null
// or empty data yields (nil, nil). A one-element array is accepted.
func singleResource(raw json.RawMessage) (*Resource, error) {
	list, err := decodeResources(raw)
	if err != nil || len(list) == 0 {
		return nil, err
	}

	return &list[0], nil
}

// decodeResources decodes a data member holding an object, an array or null.
// Objects with neither id nor type are dropped.
func decodeResources(raw json.RawMessage) ([]Resource, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var list []Resource

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decoding data: %w", err)
		}
	} else {
		var r Resource
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, fmt.Errorf("decoding data: %w", err)
		}

		list = []Resource{r}
	}

	return slices.DeleteFunc(list, func(r Resource) bool { return r.ID == "" && r.Type == "" }), nil
}
