package metrics

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// startedOnLayout is the node's startedOn timestamp format.
const startedOnLayout = "2006-01-02T15:04:05Z"

var requiredInfoKeys = []string{"ledger", "network", "peers", "protocol_version", "quorum", "startedOn", "state"}

var ledgerFields = []struct {
	core string
	prom string
}{
	{core: "age", prom: "age"},
	{core: "baseFee", prom: "base_fee"},
	{core: "baseReserve", prom: "base_reserve"},
	{core: "closeTime", prom: "close_time"},
	{core: "maxTxSetSize", prom: "max_tx_set_size"},
	{core: "num", prom: "num"},
	{core: "version", prom: "version"},
}

var (
	quorumFields      = []string{"agree", "delayed", "disagree", "fail_at", "missing"}
	quorumPhases      = []string{"unknown", "prepare", "confirm", "externalize"}
	nodeStates        = []string{"booting", "joining scp", "connected", "catching up", "synced", "stopping"}
	criticalNullValue = "null"
)

// DefaultLabelsFromInfo derives node identity labels from an /info payload.
// Params: payload raw /info body, nil when the endpoint could not be fetched.
// Returns: identity labels; "unknown" placeholders when build/network are unavailable.
func DefaultLabelsFromInfo(payload []byte) LabelSet {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return UnknownLabels()
	}
	info := gjson.GetBytes(payload, "info")
	build := info.Get("build")
	network := info.Get("network")
	if build.Type != gjson.String || !network.Exists() {
		return UnknownLabels()
	}
	return BuildDefaultLabels(build.String(), network.String())
}

// TranslateInfo translates the /info snapshot (ledger, quorum, peers, state) into gauges.
// Params: payload raw /info body; reg request registry.
// Returns: ShapeError when required sections are missing.
func (t *Translator) TranslateInfo(payload []byte, reg *Registry) error {
	if !gjson.ValidBytes(payload) {
		return &ShapeError{Subject: "info", Reason: "invalid JSON"}
	}
	info := gjson.GetBytes(payload, "info")
	if !info.IsObject() {
		return &ShapeError{Subject: "info", Reason: "missing info object"}
	}
	for _, key := range requiredInfoKeys {
		if !info.Get(key).Exists() {
			return &ShapeError{Subject: "info", Reason: "endpoint did not return all required fields"}
		}
	}

	quorum := info.Get("quorum")
	qset, err := quorumSet(quorum)
	if err != nil {
		return err
	}

	startedOn, err := time.Parse(startedOnLayout, info.Get("startedOn").String())
	if err != nil {
		return shapeErrorf("info", "parse startedOn: %v", err)
	}

	ledger := info.Get("ledger")
	for _, field := range ledgerFields {
		if value, ok := numeric(ledger.Get(field.core)); ok {
			reg.Gauge(t.SeriesName("ledger_"+field.prom), "Stellar core ledger metric name: "+field.core, value)
		}
	}

	t.translateQuorum(qset, reg)
	if transitive := quorum.Get("transitive"); transitive.Exists() {
		t.translateTransitive(transitive, reg)
	}

	peers := info.Get("peers")
	for _, field := range []string{"authenticated_count", "pending_count"} {
		if value, ok := numeric(peers.Get(field)); ok {
			reg.Gauge(t.SeriesName("peers_"+field), "Stellar core "+field+" count", value)
		}
	}
	if value, ok := numeric(info.Get("protocol_version")); ok {
		reg.Gauge(t.SeriesName("protocol_version"), "Stellar core protocol_version", value)
	}

	state := strings.ToLower(info.Get("state").String())
	for _, name := range nodeStates {
		// prefix match tolerates decorations such as "Synced!".
		reg.Gauge(
			t.SeriesName(strings.ReplaceAll(name, " ", "_")),
			"Stellar core state "+name,
			boolValue(strings.HasPrefix(state, name)),
		)
	}

	reg.Gauge(t.SeriesName("started_on"), "Stellar core start time in epoch", float64(startedOn.Unix()))
	return nil
}

// quorumSet returns the local qset summary.
// Nodes >= 11.2.0 key it by "qset", older ones by the local node id.
func quorumSet(quorum gjson.Result) (gjson.Result, error) {
	if qset := quorum.Get("qset"); qset.Exists() {
		if !truthy(qset) {
			return gjson.Result{}, &ShapeError{Subject: "info", Reason: "missing quorum data"}
		}
		return qset, nil
	}

	var first gjson.Result
	quorum.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "transitive" {
			return true
		}
		first = value
		return false
	})
	if !truthy(first) {
		return gjson.Result{}, &ShapeError{Subject: "info", Reason: "missing quorum data"}
	}
	return first, nil
}

func (t *Translator) translateQuorum(qset gjson.Result, reg *Registry) {
	for _, field := range quorumFields {
		value, ok := numeric(qset.Get(field))
		if !ok {
			// Expected while the node is joining the quorum or running catchup.
			t.logger.Debug("quorum metric not reported", slog.String("metric", field))
			continue
		}
		reg.Gauge(t.SeriesName("quorum_"+field), "Stellar core quorum metric: "+field, value)
	}

	phase := qset.Get("phase")
	if !phase.Exists() {
		t.logger.Debug("quorum phase not reported")
		return
	}
	current := strings.ToLower(phase.String())
	for _, name := range quorumPhases {
		reg.Gauge(t.SeriesName("quorum_phase_"+name), "Stellar core quorum phase "+name, boolValue(current == name))
	}
}

// translateTransitive exports quorum intersection details reported by nodes >= 11.2.0.
func (t *Translator) translateTransitive(transitive gjson.Result, reg *Registry) {
	reg.Gauge(
		t.SeriesName("quorum_transitive_intersection"),
		"Stellar core quorum transitive intersection",
		boolValue(truthy(transitive.Get("intersection"))),
	)
	if value, ok := numeric(transitive.Get("last_check_ledger")); ok {
		reg.Gauge(t.SeriesName("quorum_transitive_last_check_ledger"), "Stellar core quorum transitive last_check_ledger", value)
	}
	if value, ok := numeric(transitive.Get("node_count")); ok {
		reg.Gauge(t.SeriesName("quorum_transitive_node_count"), "Stellar core quorum transitive node_count", value)
	}

	// "critical" appears in nodes >= 11.3.0.
	critical := transitive.Get("critical")
	if !critical.Exists() {
		return
	}
	name := t.SeriesName("quorum_transitive_critical")
	help := "Stellar core quorum transitive critical"
	if !truthy(critical) {
		reg.Gauge(name, help, 0, Label{Key: "critical_validators", Value: criticalNullValue})
		return
	}
	for _, group := range critical.Array() {
		peers := make([]string, 0)
		for _, peer := range group.Array() {
			peers = append(peers, peer.String())
		}
		sort.Strings(peers)
		reg.Gauge(name, help, 1, Label{Key: "critical_validators", Value: strings.Join(peers, ",")})
	}
}

// numeric reads a JSON number or boolean.
func numeric(value gjson.Result) (float64, bool) {
	switch value.Type {
	case gjson.Number:
		return value.Float(), true
	case gjson.True:
		return 1, true
	case gjson.False:
		return 0, true
	default:
		return 0, false
	}
}

// truthy mirrors JSON truthiness: null, false, 0, "", [] and {} are false.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return value.Float() != 0
	case gjson.String:
		return value.String() != ""
	case gjson.JSON:
		if value.IsArray() {
			return len(value.Array()) > 0
		}
		return len(value.Map()) > 0
	default:
		return false
	}
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
