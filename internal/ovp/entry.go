package ovp

import (
	"context"
	"errors"
	"fmt"
)

// entryFields restricts baseEntry.list to what the media model needs.
const entryFields = "id,name,dataUrl,duration,msDuration,flavorParamsIds,mediaType,type"

// EntryInfo carries the results of the chained baseEntry.list and
// baseEntry.getContextData calls. A per-call API failure is kept in
// ListErr/ContextErr so callers can report which step failed.
type EntryInfo struct {
	List       *BaseEntryListResponse
	ListErr    error
	Context    *EntryContextDataResult
	ContextErr error
}

// EntryInfoCalls builds the two chained calls for entryID. The context data
// call references the entry id resolved by the list call.
func EntryInfoCalls(entryID string) []Call {
	return []Call{
		{
			Service: "baseEntry",
			Action:  "list",
			Params: map[string]any{
				"filter": map[string]any{
					"redirectFromEntryId": entryID,
				},
				"responseProfile": map[string]any{
					"type":   1,
					"fields": entryFields,
				},
			},
		},
		{
			Service: "baseEntry",
			Action:  "getContextData",
			Params: map[string]any{
				"entryId": "{1:result:objects:0:id}",
				"contextDataParams": map[string]any{
					"objectType": ObjectTypeContextDataParams,
					"flavorTags": "all",
				},
			},
		},
	}
}

// EntryInfo resolves entry metadata and playback context data in one round trip.
// Transport and top-level failures are returned as error; per-call API
// exceptions are reported in the result. Malformed elements fail with ErrBadResponse.
func (c *Client) EntryInfo(ctx context.Context, ks, entryID string) (*EntryInfo, error) {
	elements, err := c.Multirequest(ctx, ks, EntryInfoCalls(entryID)...)
	if err != nil {
		return nil, err
	}

	info := &EntryInfo{}
	var list BaseEntryListResponse
	if err := ParseResult(elements[0], &list); err != nil {
		if !isAPIError(err) {
			return nil, fmt.Errorf("baseEntry.list: %w", err)
		}
		info.ListErr = err
	} else {
		info.List = &list
	}

	var contextData EntryContextDataResult
	if err := ParseResult(elements[1], &contextData); err != nil {
		if !isAPIError(err) {
			return nil, fmt.Errorf("baseEntry.getContextData: %w", err)
		}
		info.ContextErr = err
	} else {
		info.Context = &contextData
	}
	return info, nil
}

func isAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
