package ovp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt(t *testing.T) {
	var v struct {
		A FlexInt `json:"a"`
		B FlexInt `json:"b"`
		C FlexInt `json:"c"`
		D FlexInt `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"34","c":null,"d":""}`), &v))
	assert.Equal(t, FlexInt(12), v.A)
	assert.Equal(t, FlexInt(34), v.B)
	assert.Equal(t, FlexInt(0), v.C)
	assert.Equal(t, FlexInt(0), v.D)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"twelve"}`), &v))
}

func TestFlavorParamsIDList(t *testing.T) {
	e := MediaEntry{FlavorParamsIDs: "0, 487041,487051,bogus,487061"}
	assert.Equal(t, []int{0, 487041, 487051, 487061}, e.FlavorParamsIDList())

	e.FlavorParamsIDs = " "
	assert.Nil(t, e.FlavorParamsIDList())
}

func TestParseResult(t *testing.T) {
	var list BaseEntryListResponse
	raw := json.RawMessage(`{"objectType":"KalturaBaseEntryListResponse","objects":[{"id":"1_abc","msDuration":102000,"flavorParamsIds":"0,1"}],"totalCount":1}`)
	require.NoError(t, ParseResult(raw, &list))

	want := BaseEntryListResponse{
		ObjectType: ObjectTypeBaseEntryList,
		Objects:    []MediaEntry{{ID: "1_abc", MsDuration: 102000, FlavorParamsIDs: "0,1"}},
		TotalCount: 1,
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ParseResult() mismatch (-want +got):\n%s", diff)
	}

	err := ParseResult(json.RawMessage(`{"objectType":"KalturaAPIException","code":"ENTRY_ID_NOT_FOUND","message":"gone"}`), &list)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ENTRY_ID_NOT_FOUND", apiErr.Code)

	err = ParseResult(json.RawMessage(`{"objectType":`), &list)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestContextData_Lookups(t *testing.T) {
	scheduled := false
	c := &EntryContextDataResult{
		FlavorAssets: []FlavorAsset{
			{ID: "1_a", FlavorParamsID: 487041},
			{ID: "1_b", FlavorParamsID: 487051},
		},
	}
	fa, ok := c.FlavorByParamsID(487051)
	require.True(t, ok)
	assert.Equal(t, "1_b", fa.ID)

	_, ok = c.FlavorByParamsID(1)
	assert.False(t, ok)

	_, ok = c.FlavorByID("1_a")
	assert.True(t, ok)

	assert.False(t, c.Restricted())
	c.IsScheduledNow = &scheduled
	assert.True(t, c.Restricted())

	var nilCtx *EntryContextDataResult
	_, ok = nilCtx.FlavorByParamsID(1)
	assert.False(t, ok)
}

func TestSourceFlavorIDList(t *testing.T) {
	s := Source{FlavorIDs: "1_a, 1_b,,"}
	assert.Equal(t, []string{"1_a", "1_b"}, s.FlavorIDList())
}

func TestMediaTypeName(t *testing.T) {
	assert.Equal(t, "video", (&MediaEntry{MediaType: 1}).MediaTypeName())
	assert.Equal(t, "audio", (&MediaEntry{MediaType: 5}).MediaTypeName())
	assert.Equal(t, "live", (&MediaEntry{MediaType: 201}).MediaTypeName())
	assert.Equal(t, "", (&MediaEntry{}).MediaTypeName())
}
