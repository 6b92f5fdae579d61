package querytranslate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	q "github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/querytranslate"
	"github.com/roach88/relq/internal/schema/mock_schema"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/testutil"
)

// mockModel answers entity lookups from the shop model.
func mockModel(t *testing.T) *mock_schema.MockModel {
	t.Helper()
	shop := testutil.ShopModel()
	m := mock_schema.NewMockModel(gomock.NewController(t))
	m.EXPECT().Entity(gomock.Any()).DoAndReturn(shop.Entity).AnyTimes()
	return m
}

func TestKnownEntityNeverListsModel(t *testing.T) {
	m := mockModel(t)
	m.EXPECT().Entities().Times(0)

	res, err := querytranslate.New(m, dialect, nil).
		Translate(q.From("Order").Where("o", q.Eq(q.F("o.Customer.City"), q.C("Oslo"))).Select("o", q.F("o.Id")).Expr())
	require.NoError(t, err)
	assert.Equal(t, querytranslate.Many, res.Cardinality)
}

func TestUnknownEntityListsModelOnce(t *testing.T) {
	m := mockModel(t)
	m.EXPECT().Entities().Return(testutil.ShopModel().Entities()).Times(1)

	_, err := querytranslate.New(m, dialect, nil).Translate(q.From("Ordr").Expr())
	require.Error(t, err)
	assert.True(t, sqltranslate.IsUnknownMember(err))

	var te *sqltranslate.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Order", te.Suggestion)
}

func TestLookupsUseEntityNames(t *testing.T) {
	m := mock_schema.NewMockModel(gomock.NewController(t))
	shop := testutil.ShopModel()

	customer, _ := shop.Entity("Customer")
	order, _ := shop.Entity("Order")
	m.EXPECT().Entity("Customer").Return(customer, true).MinTimes(1)
	m.EXPECT().Entity("Order").Return(order, true).MinTimes(1)

	_, err := querytranslate.New(m, dialect, nil).
		Translate(q.From("Customer").SelectMany("c", q.F("c.Orders"), nil).Select("o", q.F("o.Id")).Expr())
	require.NoError(t, err)
}
