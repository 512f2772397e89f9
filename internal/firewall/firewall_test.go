package firewall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Micca1978/scadarange/internal/auth"
	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/exploit"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/internal/policy"
	"github.com/Micca1978/scadarange/pkg/types"
)

func testConfig() *config.FirewallConfig {
	cfg := config.Default().Firewall
	cfg.BcryptCost = bcrypt.MinCost
	return &cfg
}

func newFirewall(t *testing.T, roll func() float64) (*Firewall, *exploit.Flag) {
	t.Helper()
	scadaFlag := &exploit.Flag{}
	fw, err := New(Params{
		Config:    testConfig(),
		Exploit:   config.Default().Exploit,
		ScadaFlag: scadaFlag,
		Model:     exploit.NewModel(exploit.WithSource(roll)),
		Log:       monitor.NewActivityLog("firewall", 1000),
	})
	require.NoError(t, err)
	return fw, scadaFlag
}

func always(v float64) func() float64 { return func() float64 { return v } }

func TestNew_Defaults(t *testing.T) {
	fw, _ := newFirewall(t, always(0.99))
	s := fw.Status()

	assert.False(t, s.Compromised)
	assert.False(t, s.Authenticated)
	assert.True(t, s.IPSEnabled)
	assert.Equal(t, 6, s.RuleCount)
	assert.Equal(t, types.ActionDeny, s.DefaultPolicy)
	assert.Equal(t, 5, s.MaxLoginAttempts)
	assert.Len(t, s.Vulnerabilities, 4)
	assert.False(t, fw.CheckPortalAccess())
}

func TestRuleMutationsAreLogged(t *testing.T) {
	fw, _ := newFirewall(t, always(0.99))

	rule := fw.AddRule(types.RuleSpec{Name: "allow modbus", Source: "any", Destination: "plc", Service: "modbus", Action: types.ActionAllow})
	_, err := fw.UpdateRule(rule.ID, types.RuleSpec{Name: "deny modbus", Source: "any", Destination: "plc", Service: "modbus", Action: types.ActionDeny})
	require.NoError(t, err)
	fw.RemoveRule(rule.ID)

	_, err = fw.UpdateRule("missing", types.RuleSpec{})
	require.ErrorIs(t, err, policy.ErrRuleNotFound)

	logs := fw.Logs(3)
	require.Len(t, logs, 3)
	assert.Equal(t, "rule_added", logs[0].Type)
	assert.Equal(t, "Rule added: allow modbus", logs[0].Message)
	assert.Equal(t, "rule_updated", logs[1].Type)
	assert.Equal(t, "rule_removed", logs[2].Type)
	assert.Equal(t, 6, len(fw.ListRules()))
}

func TestRemovingPortalDeniesOpensPortal(t *testing.T) {
	fw, _ := newFirewall(t, always(0.99))
	for _, id := range []string{"rule-1", "rule-2", "rule-3", "rule-4"} {
		fw.RemoveRule(id)
	}
	fw.AddRule(types.RuleSpec{Name: "open portal", Source: "any", Destination: "scada-portal", Service: "https", Action: types.ActionAllow})

	assert.True(t, fw.CheckPortalAccess())
}

func TestToggleIPS(t *testing.T) {
	fw, _ := newFirewall(t, always(0.99))

	fw.ToggleIPS(false)
	assert.False(t, fw.IPSEnabled())
	assert.Equal(t, "IPS disabled", fw.Logs(1)[0].Message)

	fw.ToggleIPS(true)
	assert.True(t, fw.Status().IPSEnabled)
}

func TestAttemptExploit_CompromiseOpensEverything(t *testing.T) {
	fw, scadaFlag := newFirewall(t, always(0.1))

	res := fw.AttemptExploit()
	require.True(t, res.Success)
	assert.Equal(t, "default_credentials", res.Method)
	assert.True(t, fw.Status().Compromised)

	d := fw.EvaluateConnection("10.0.0.9", "scada-server-1", "http", types.AttackerIdentity)
	assert.True(t, d.Allowed)
	assert.Equal(t, types.ReasonFirewallCompromised, d.Reason)

	assert.False(t, scadaFlag.IsSet())
	assert.True(t, fw.CheckPortalAccess())
}

func TestAttemptExploit_PatchedVulnerabilitiesSkipTrials(t *testing.T) {
	fw, _ := newFirewall(t, always(0.1))
	for _, v := range []string{"default_credentials", "weak_admin_password", "exposed_management_interface"} {
		require.NoError(t, fw.SetVulnerability(v, false))
	}

	res := fw.AttemptExploit()
	assert.False(t, res.Success)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, "Exploitation attempts failed", res.Message)
	assert.False(t, fw.Flag().IsSet())
}

func TestSetVulnerability_Unknown(t *testing.T) {
	fw, _ := newFirewall(t, always(0.99))
	require.ErrorIs(t, fw.SetVulnerability("heartbleed", false), ErrUnknownVulnerability)
}

func TestLoginLockoutVisibleInStatus(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fw, err := New(Params{
		Config:      testConfig(),
		Exploit:     config.Default().Exploit,
		Log:         monitor.NewActivityLog("firewall", 100),
		AuthOptions: []auth.Option{auth.WithClock(func() time.Time { return now })},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = fw.Login("admin", "guess")
	}
	s := fw.Status()
	assert.True(t, s.Locked)
	assert.Equal(t, 5, s.LoginAttempts)

	_, err = fw.Login("admin", "admin123")
	require.ErrorIs(t, err, auth.ErrAccountLocked)
}

func TestLogs_DefaultLimit(t *testing.T) {
	fw, _ := newFirewall(t, always(0.99))
	for i := 0; i < 150; i++ {
		fw.EvaluateConnection("a", "b", "ftp", "x")
	}
	assert.Len(t, fw.Logs(0), 100)
	assert.Len(t, fw.Status().RecentLogs, 50)
}
