package service

import (
	"context"
	"encoding/base64"
	"testing"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	productAdmin    = &models.User{ID: 1, RoleID: 1}
	productOperator = &models.User{ID: 2, RoleID: 2}
)

func newProductService(t *testing.T) (*ProductService, *store.MemoryStore) {
	t.Helper()
	util.SetLogger(zap.NewNop())
	ms := store.NewMemoryStore()
	return NewProductService(ms, 1, 20), ms
}

func productRequest(barcode string) CreateProductRequest {
	return CreateProductRequest{
		Description: "Leite integral",
		SellValue:   decimal.RequireFromString("5.99"),
		Barcode:     barcode,
		SectionID:   2,
		Stock:       10,
	}
}

func TestProductCreate(t *testing.T) {
	svc, _ := newProductService(t)
	ctx := context.Background()

	req := productRequest("789")
	expires := "31/12/2030"
	req.ExpirationDate = &expires
	req.Images = []string{base64.StdEncoding.EncodeToString([]byte("png"))}

	res, err := svc.Create(ctx, productAdmin, req)
	require.NoError(t, err)
	assert.Equal(t, "Produto cadastrado com sucesso", res.Message)
	assert.Equal(t, "Laticínios", res.Detail.SectionName)
	assert.Equal(t, []string{req.Images[0]}, res.Detail.Images)
	require.NotNil(t, res.Detail.ExpirationDate)
	assert.Equal(t, 2030, res.Detail.ExpirationDate.Year())
}

func TestProductCreate_ImageFailureKeepsProduct(t *testing.T) {
	svc, _ := newProductService(t)
	ctx := context.Background()

	req := productRequest("789")
	req.Images = []string{"not base64!", base64.StdEncoding.EncodeToString([]byte("jpg"))}

	res, err := svc.Create(ctx, productAdmin, req)
	require.NoError(t, err)
	assert.Equal(t, "Produto cadastrado com sucesso"+imageWarning, res.Message)
	assert.Len(t, res.Detail.Images, 1)

	got, err := svc.Get(ctx, res.Detail.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
}

func TestProductCreate_Rejections(t *testing.T) {
	svc, _ := newProductService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, productAdmin, productRequest("taken"))
	require.NoError(t, err)

	badDate := "2030-12-31"
	tests := []struct {
		name   string
		caller *models.User
		mutate func(*CreateProductRequest)
		want   error
		msg    string
	}{
		{"operator", productOperator, func(r *CreateProductRequest) {}, ErrForbidden, "Apenas Admins podem adicionar produtos"},
		{"price", productAdmin, func(r *CreateProductRequest) { r.SellValue = decimal.Zero }, ErrInvalidInput, "Preço de venda inválido"},
		{"stock", productAdmin, func(r *CreateProductRequest) { r.Stock = 0 }, ErrInvalidInput, "Estoque inicial inválido"},
		{"date", productAdmin, func(r *CreateProductRequest) { r.ExpirationDate = &badDate }, ErrInvalidInput, "Prazo de validade inválido"},
		{"section", productAdmin, func(r *CreateProductRequest) { r.SectionID = 99 }, ErrInvalidInput, "ID de categoria inválido"},
		{"barcode", productAdmin, func(r *CreateProductRequest) { r.Barcode = "taken" }, ErrInvalidInput, "Código de barras já existe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := productRequest("new")
			tt.mutate(&req)
			_, err := svc.Create(ctx, tt.caller, req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestProductUpdate(t *testing.T) {
	svc, _ := newProductService(t)
	ctx := context.Background()
	first, err := svc.Create(ctx, productAdmin, productRequest("1"))
	require.NoError(t, err)
	second, err := svc.Create(ctx, productAdmin, productRequest("2"))
	require.NoError(t, err)

	price := decimal.RequireFromString("7.25")
	stock := 3
	res, err := svc.Update(ctx, productAdmin, first.Detail.ID, UpdateProductRequest{SellValue: &price, Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, "Produto atualizado com sucesso", res.Message)
	assert.True(t, price.Equal(res.Detail.SellValue))
	assert.Equal(t, 3, res.Detail.Stock)
	assert.Equal(t, "1", res.Detail.Barcode)

	barcode := "2"
	_, err = svc.Update(ctx, productAdmin, first.Detail.ID, UpdateProductRequest{Barcode: &barcode})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "Barcode já existe", err.Error())

	_, err = svc.Update(ctx, productAdmin, second.Detail.ID, UpdateProductRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Update(ctx, productOperator, second.Detail.ID, UpdateProductRequest{Stock: &stock})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Update(ctx, productAdmin, 999, UpdateProductRequest{Stock: &stock})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductDelete(t *testing.T) {
	svc, ms := newProductService(t)
	ctx := context.Background()
	used, err := svc.Create(ctx, productAdmin, productRequest("1"))
	require.NoError(t, err)
	free, err := svc.Create(ctx, productAdmin, productRequest("2"))
	require.NoError(t, err)

	repo := ms.Repo()
	client := &models.Client{Name: "Ana", Email: "ana@mail.com", CPF: "52998224725"}
	require.NoError(t, repo.CreateClient(ctx, client))
	order := &models.Order{ClientID: client.ID, StatusID: 2}
	require.NoError(t, repo.CreateOrder(ctx, order))
	require.NoError(t, repo.AddLineItem(ctx, order.ID, used.Detail.ID, 1))

	err = svc.Delete(ctx, productAdmin, used.Detail.ID)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "Produto possui ordens vinculadas", err.Error())

	assert.ErrorIs(t, svc.Delete(ctx, productOperator, free.Detail.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, productAdmin, free.Detail.ID))
	assert.ErrorIs(t, svc.Delete(ctx, productAdmin, free.Detail.ID), ErrProductNotFound)
}

func TestProductList(t *testing.T) {
	svc, _ := newProductService(t)
	ctx := context.Background()

	cheap := productRequest("1")
	cheap.SellValue = decimal.RequireFromString("2.00")
	_, err := svc.Create(ctx, productAdmin, cheap)
	require.NoError(t, err)

	soap := productRequest("2")
	soap.SectionID = 3
	soap.SellValue = decimal.RequireFromString("9.00")
	created, err := svc.Create(ctx, productAdmin, soap)
	require.NoError(t, err)

	page, err := svc.List(ctx, ListProductsRequest{Category: "limp"})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, created.Detail.ID, page[0].ID)

	page, err = svc.List(ctx, ListProductsRequest{SellValue: decimal.RequireFromString("5")})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "1", page[0].Barcode)

	zero := 0
	_, err = svc.Update(ctx, productAdmin, created.Detail.ID, UpdateProductRequest{Stock: &zero})
	require.NoError(t, err)
	page, err = svc.List(ctx, ListProductsRequest{Available: true})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	_, err = svc.List(ctx, ListProductsRequest{Category: "Eletrônicos"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
