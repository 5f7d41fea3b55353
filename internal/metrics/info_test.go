package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const infoPayload = `{"info":{
	"build":"stellar-core 19.5.0 (b6fb1d4e2dcb2d9c6b9dbd5a3ba0c3fb5f3b8a6c)",
	"network":"Test SDF Network ; September 2015",
	"ledger":{"age":3,"baseFee":100,"baseReserve":5000000,"closeTime":1648807197,"hash":"abc","maxTxSetSize":1000,"num":123456,"version":19},
	"peers":{"authenticated_count":8,"pending_count":1},
	"protocol_version":19,
	"quorum":{
		"qset":{"agree":5,"delayed":0,"disagree":0,"fail_at":2,"hash":"1a2b3c","ledger":123456,"missing":1,"phase":"EXTERNALIZE"},
		"transitive":{"critical":[["GB","GA"]],"intersection":true,"last_check_ledger":123400,"node_count":7}
	},
	"startedOn":"2022-04-01T10:00:00Z",
	"state":"Synced!"
}}`

func renderedValues(reg *Registry) map[string]float64 {
	out := make(map[string]float64)
	for _, rec := range reg.Records() {
		key := rec.Name
		if value, ok := rec.Labels.Get("critical_validators"); ok {
			key += "{" + value + "}"
		}
		out[key] = rec.Value
	}
	return out
}

func TestTranslateInfo_FullPayload(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})
	reg := NewRegistry(DefaultLabelsFromInfo([]byte(infoPayload)))

	require.NoError(t, tr.TranslateInfo([]byte(infoPayload), reg))
	values := renderedValues(reg)

	assert.Equal(t, 3.0, values["stellar_core_ledger_age"])
	assert.Equal(t, 100.0, values["stellar_core_ledger_base_fee"])
	assert.Equal(t, 123456.0, values["stellar_core_ledger_num"])
	assert.Equal(t, 1000.0, values["stellar_core_ledger_max_tx_set_size"])
	assert.NotContains(t, values, "stellar_core_ledger_hash")

	assert.Equal(t, 5.0, values["stellar_core_quorum_agree"])
	assert.Equal(t, 2.0, values["stellar_core_quorum_fail_at"])
	assert.Equal(t, 1.0, values["stellar_core_quorum_missing"])
	assert.Equal(t, 1.0, values["stellar_core_quorum_phase_externalize"])
	assert.Equal(t, 0.0, values["stellar_core_quorum_phase_confirm"])

	assert.Equal(t, 1.0, values["stellar_core_quorum_transitive_intersection"])
	assert.Equal(t, 123400.0, values["stellar_core_quorum_transitive_last_check_ledger"])
	assert.Equal(t, 7.0, values["stellar_core_quorum_transitive_node_count"])
	assert.Equal(t, 1.0, values["stellar_core_quorum_transitive_critical{GA,GB}"])

	assert.Equal(t, 8.0, values["stellar_core_peers_authenticated_count"])
	assert.Equal(t, 1.0, values["stellar_core_peers_pending_count"])
	assert.Equal(t, 19.0, values["stellar_core_protocol_version"])

	assert.Equal(t, 1.0, values["stellar_core_synced"])
	assert.Equal(t, 0.0, values["stellar_core_catching_up"])
	assert.Equal(t, 0.0, values["stellar_core_joining_scp"])

	assert.Equal(t, 1648807200.0, values["stellar_core_started_on"])

	build, _ := reg.Records()[0].Labels.Get(LabelBuild)
	assert.Equal(t, "stellar-core_19.5.0_b6fb1d4e2dcb2d9c6b9dbd5a3ba0c3fb5f3b8a6c", build)
}

func TestTranslateInfo_OldQuorumFormat(t *testing.T) {
	payload := `{"info":{
		"build":"v10.0.0","network":"public",
		"ledger":{"num":1},"peers":{},"protocol_version":10,
		"quorum":{"GDNODE":{"agree":3,"phase":"confirm"}},
		"startedOn":"2019-01-01T00:00:00Z","state":"Catching up"
	}}`
	tr := NewTranslator(TranslatorOptions{})
	reg := NewRegistry(nil)

	require.NoError(t, tr.TranslateInfo([]byte(payload), reg))
	values := renderedValues(reg)

	assert.Equal(t, 3.0, values["stellar_core_quorum_agree"])
	assert.NotContains(t, values, "stellar_core_quorum_delayed")
	assert.Equal(t, 1.0, values["stellar_core_quorum_phase_confirm"])
	assert.Equal(t, 1.0, values["stellar_core_catching_up"])
	assert.NotContains(t, values, "stellar_core_quorum_transitive_intersection")
}

func TestTranslateInfo_NoCriticalGroups(t *testing.T) {
	payload := `{"info":{
		"build":"v19.0.0","network":"public","ledger":{},"peers":{},"protocol_version":19,
		"quorum":{"qset":{"agree":1},"transitive":{"critical":null,"intersection":false}},
		"startedOn":"2022-01-01T00:00:00Z","state":"Booting"
	}}`
	tr := NewTranslator(TranslatorOptions{})
	reg := NewRegistry(nil)

	require.NoError(t, tr.TranslateInfo([]byte(payload), reg))
	values := renderedValues(reg)

	assert.Equal(t, 0.0, values["stellar_core_quorum_transitive_critical{null}"])
	assert.Equal(t, 0.0, values["stellar_core_quorum_transitive_intersection"])
	assert.Equal(t, 1.0, values["stellar_core_booting"])
}

func TestTranslateInfo_ShapeErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":    `{`,
		"missing info":    `{"status":"ok"}`,
		"missing state":   `{"info":{"ledger":{},"network":"n","peers":{},"protocol_version":1,"quorum":{"qset":{"agree":1}},"startedOn":"2022-01-01T00:00:00Z"}}`,
		"empty qset":      `{"info":{"ledger":{},"network":"n","peers":{},"protocol_version":1,"quorum":{"qset":{}},"startedOn":"2022-01-01T00:00:00Z","state":"Synced!"}}`,
		"no quorum data":  `{"info":{"ledger":{},"network":"n","peers":{},"protocol_version":1,"quorum":{},"startedOn":"2022-01-01T00:00:00Z","state":"Synced!"}}`,
		"bad start stamp": `{"info":{"ledger":{},"network":"n","peers":{},"protocol_version":1,"quorum":{"qset":{"agree":1}},"startedOn":"yesterday","state":"Synced!"}}`,
	}

	tr := NewTranslator(TranslatorOptions{})
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			reg := NewRegistry(nil)
			err := tr.TranslateInfo([]byte(payload), reg)

			var shapeErr *ShapeError
			require.True(t, errors.As(err, &shapeErr), "err=%v", err)
			assert.Zero(t, reg.Len())
		})
	}
}
