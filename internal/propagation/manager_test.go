package propagation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/password"
	"github.com/mreiling/idprov/internal/subject"
)

func makeTestMapping(resource string, withPassword bool) *mapping.ResourceMapping {
	m := &mapping.ResourceMapping{
		Resource:    resource,
		ObjectClass: "account",
		Items: []mapping.Item{
			{IntName: "username", ExtName: "uid", Kind: mapping.KindPlain, Purpose: mapping.PurposeBoth, Key: true, Mandatory: "true"},
			{IntName: "email", ExtName: "mail", Kind: mapping.KindPlain, Purpose: mapping.PurposeBoth},
		},
	}
	if withPassword {
		m.Items = append(m.Items, mapping.Item{
			IntName: "secret", ExtName: "userPassword",
			Kind: mapping.KindPassword, Purpose: mapping.PurposePropagation, Password: true,
		})
	}
	return m
}

func makeTestResource(name string, primary bool, priority int) *Resource {
	return &Resource{
		Name:        name,
		ObjectClass: "account",
		Mapping:     makeTestMapping(name, false),
		Connector:   connector.NewMemory(name),
		Primary:     primary,
		Priority:    priority,
		Mode:        ModeTwoPhase,
	}
}

func makeManager(resources ...*Resource) *Manager {
	resolver := mapping.NewResolver(mapping.NewRegistry(), nil, nil)
	return NewManager(resolver, NewExecutor(2), resources, nil)
}

func makePropSubject(resources ...string) *subject.Subject {
	sub := subject.New("u-1", subject.KindUser)
	sub.SetAttr("username", "jdoe")
	sub.SetAttr("email", "jdoe@example.org")
	for _, r := range resources {
		sub.LinkResource(r)
	}
	return sub
}

func TestDeriveTasks_OrderPrimaryThenPriorityThenName(t *testing.T) {
	resources := []*Resource{
		makeTestResource("zeta", false, 1),
		makeTestResource("alpha", false, 1),
		makeTestResource("slow", false, 9),
		makeTestResource("main", true, 5),
	}
	m := makeManager(resources...)
	sub := makePropSubject("zeta", "alpha", "slow", "main")

	tasks, pre, err := m.DeriveTasks(context.Background(), sub, OpUpdate, Options{})
	require.NoError(t, err)
	assert.Empty(t, pre)

	var order []string
	for _, task := range tasks {
		order = append(order, task.Resource)
	}
	assert.Equal(t, []string{"main", "alpha", "zeta", "slow"}, order)
}

// groupFinder serves group subjects for membership expansion.
type groupFinder map[string]*subject.Subject

func (f groupFinder) Get(_ context.Context, key string) (*subject.Subject, error) {
	return f[key], nil
}

func TestDeriveTasks_MembershipInheritedResources(t *testing.T) {
	linked := makeTestResource("direct", false, 0)
	inherited := makeTestResource("via-group", false, 0)

	group := subject.New("g-eng", subject.KindGroup)
	group.LinkResource("via-group")

	resolver := mapping.NewResolver(mapping.NewRegistry(), nil, nil)
	m := NewManager(resolver, NewExecutor(1), []*Resource{linked, inherited}, groupFinder{"g-eng": group})

	sub := makePropSubject("direct")
	sub.SetAttr(MembershipAttr, "g-eng", "g-ghost")

	tasks, _, err := m.DeriveTasks(context.Background(), sub, OpUpdate, Options{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "direct", tasks[0].Resource)
	assert.Equal(t, "via-group", tasks[1].Resource)
}

func TestDeriveTasks_ExcludeRemovesResource(t *testing.T) {
	m := makeManager(makeTestResource("keep", false, 0), makeTestResource("skip", false, 0))
	sub := makePropSubject("keep", "skip")

	tasks, _, err := m.DeriveTasks(context.Background(), sub, OpUpdate, Options{Exclude: []string{"skip"}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "keep", tasks[0].Resource)
}

func TestDeriveTasks_UnknownResourceIsFatal(t *testing.T) {
	m := makeManager(makeTestResource("known", false, 0))
	sub := makePropSubject("known", "phantom")

	_, _, err := m.DeriveTasks(context.Background(), sub, OpUpdate, Options{})
	assert.Error(t, err)
}

func TestDeriveTasks_ResourceWithoutKeyItemSkipped(t *testing.T) {
	res := makeTestResource("nokey", false, 0)
	res.Mapping.Items = res.Mapping.Items[1:] // drop the key item
	m := makeManager(res)

	tasks, pre, err := m.DeriveTasks(context.Background(), makePropSubject("nokey"), OpUpdate, Options{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, pre)
}

func TestDeriveTasks_UnresolvableMappingYieldsUnsubmitted(t *testing.T) {
	m := makeManager(makeTestResource("crm", false, 0))
	sub := makePropSubject("crm")
	sub.Attrs["username"] = nil // mandatory key value missing

	tasks, pre, err := m.DeriveTasks(context.Background(), sub, OpUpdate, Options{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	require.Len(t, pre, 1)
	assert.Equal(t, StatusUnsubmitted, pre[0].Status)
	assert.Contains(t, pre[0].FailureReason, "username")
}

func TestDeriveTasks_CreateWithoutPassword(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	res.Mapping = makeTestMapping("crm", true)
	res.PasswordPolicy = password.Policy{Length: 12, RequireLower: true}
	m := makeManager(res)
	sub := makePropSubject("crm")

	// Without generation the task stays unsubmitted.
	tasks, pre, err := m.DeriveTasks(context.Background(), sub, OpCreate, Options{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	require.Len(t, pre, 1)
	assert.Equal(t, StatusUnsubmitted, pre[0].Status)

	// With generation enabled a random password rides along.
	res.RandomPwdIfNotProvided = true
	tasks, pre, err = m.DeriveTasks(context.Background(), sub, OpCreate, Options{})
	require.NoError(t, err)
	assert.Empty(t, pre)
	require.Len(t, tasks, 1)

	var pw []string
	for _, a := range tasks[0].Attrs {
		if a.Name == "userPassword" {
			pw = a.Values
		}
	}
	require.Len(t, pw, 1)
	assert.Len(t, pw[0], 12)
}

func TestDeriveTasks_SuppliedPasswordRidesAlong(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	res.Mapping = makeTestMapping("crm", true)
	m := makeManager(res)

	tasks, _, err := m.DeriveTasks(context.Background(), makePropSubject("crm"), OpCreate, Options{Password: "s3cret"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	found := false
	for _, a := range tasks[0].Attrs {
		if a.Name == "userPassword" {
			found = true
			assert.Equal(t, []string{"s3cret"}, a.Values)
		}
	}
	assert.True(t, found)
}

func TestDeriveTasks_PasswordMissingOnUpdateIsFine(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	res.Mapping = makeTestMapping("crm", true)
	m := makeManager(res)

	tasks, pre, err := m.DeriveTasks(context.Background(), makePropSubject("crm"), OpUpdate, Options{})
	require.NoError(t, err)
	assert.Empty(t, pre)
	require.Len(t, tasks, 1)
	for _, a := range tasks[0].Attrs {
		assert.NotEqual(t, "userPassword", a.Name)
	}
}

func TestDeriveTasks_RenameSetsPrevAccountID(t *testing.T) {
	m := makeManager(makeTestResource("crm", false, 0))

	prev := makePropSubject("crm")
	sub := prev.Clone()
	sub.SetAttr("username", "j.doe")

	tasks, _, err := m.DeriveTasks(context.Background(), sub, OpUpdate, Options{Previous: prev})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "j.doe", tasks[0].AccountID)
	assert.Equal(t, "jdoe", tasks[0].PrevAccountID)
}

func TestPropagate_EndToEnd(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	m := makeManager(res)
	mem := res.Connector.(*connector.Memory)

	statuses, err := m.Propagate(context.Background(), makePropSubject("crm"), OpCreate, Options{})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusSuccess, statuses[0].Status)

	rec, err := mem.Get(context.Background(), "account", "jdoe")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"jdoe@example.org"}, rec.AttrValues("mail"))
}

func TestPropagate_PartialFailureIsolation(t *testing.T) {
	good := makeTestResource("good", false, 0)
	bad := makeTestResource("bad", false, 1)
	m := makeManager(good, bad)

	bad.Connector.(*connector.Memory).FailNext(connector.Transient("bad", "create", assert.AnError))

	statuses, err := m.Propagate(context.Background(), makePropSubject("good", "bad"), OpCreate, Options{})
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byResource := map[string]Status{}
	for _, s := range statuses {
		byResource[s.Resource] = s
	}
	assert.Equal(t, StatusSuccess, byResource["good"].Status)
	assert.Equal(t, StatusFailure, byResource["bad"].Status)
	assert.True(t, strings.Contains(byResource["bad"].FailureReason, "TRANSIENT"))
}
