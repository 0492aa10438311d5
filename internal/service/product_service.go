package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const imageWarning = ". Uma ou mais imagem não pôde ser salva..."

var minSellValue = decimal.RequireFromString("0.01")

// ProductService manages the catalog
type ProductService struct {
	store       store.Gateway
	adminRoleID int64
	pageSize    int
	logger      *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(gw store.Gateway, adminRoleID int64, pageSize int) *ProductService {
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	return &ProductService{
		store:       gw,
		adminRoleID: adminRoleID,
		pageSize:    pageSize,
		logger:      util.GetLogger(),
	}
}

// CreateProductRequest represents a request to create a product.
// ExpirationDate is dd/mm/yyyy and Images are base64 encoded.
type CreateProductRequest struct {
	Description    string          `json:"description" binding:"required"`
	SellValue      decimal.Decimal `json:"sell_value"`
	Barcode        string          `json:"barcode" binding:"required"`
	SectionID      int64           `json:"section_id" binding:"required"`
	Stock          int             `json:"stock"`
	ExpirationDate *string         `json:"expiration_date"`
	Images         []string        `json:"images"`
}

// UpdateProductRequest carries the fields to change; nil means unchanged
type UpdateProductRequest struct {
	Description    *string          `json:"description"`
	SellValue      *decimal.Decimal `json:"sell_value"`
	Barcode        *string          `json:"barcode"`
	SectionID      *int64           `json:"section_id"`
	Stock          *int             `json:"stock"`
	ExpirationDate *string          `json:"expiration_date"`
	Images         []string         `json:"images"`
}

// ListProductsRequest holds the raw filters of a product listing
type ListProductsRequest struct {
	Offset    int
	Category  string
	SellValue decimal.Decimal
	Available bool
}

// ProductResult is the outcome of a write, with any image warning in Message
type ProductResult struct {
	Message string
	Detail  *models.ProductDetail
}

// List returns a page of products matching the filters
func (s *ProductService) List(ctx context.Context, req ListProductsRequest) ([]models.ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.List")
	defer span.End()

	repo := s.store.Repo()
	filter := store.ProductFilter{Offset: req.Offset, Limit: s.pageSize, OnlyAvailable: req.Available}
	if req.Category != "" {
		id, err := repo.FindSectionID(ctx, req.Category)
		if err != nil {
			return nil, lookupFailed(err, "Categoria não localizada, por favor redefina o filtro")
		}
		filter.SectionID = &id
	}
	if req.SellValue.IsPositive() {
		filter.MaxSellValue = &req.SellValue
	}

	products, err := repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	out := make([]models.ProductDetail, 0, len(products))
	for _, p := range products {
		d, err := s.describe(ctx, repo, &p)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// Get retrieves a product with its section name and images
func (s *ProductService) Get(ctx context.Context, id int64) (*models.ProductDetail, error) {
	repo := s.store.Repo()
	p, err := repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrProductNotFound)
	}
	return s.describe(ctx, repo, p)
}

// Create stores a product; admin only. Images are stored best effort:
// a failed image adds a warning to the message instead of failing the call.
func (s *ProductService) Create(ctx context.Context, caller *models.User, req CreateProductRequest) (*ProductResult, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Create")
	defer span.End()

	if !isAdmin(caller, s.adminRoleID) {
		return nil, forbidden("Apenas Admins podem adicionar produtos")
	}
	if req.SellValue.LessThan(minSellValue) {
		return nil, invalid("Preço de venda inválido")
	}
	if req.Stock < 1 {
		return nil, invalid("Estoque inicial inválido")
	}
	product := &models.Product{
		Description: strings.TrimSpace(req.Description),
		SellValue:   req.SellValue,
		Barcode:     strings.TrimSpace(req.Barcode),
		SectionID:   req.SectionID,
		Stock:       req.Stock,
	}
	if req.ExpirationDate != nil {
		d, err := models.ParseDate(*req.ExpirationDate)
		if err != nil {
			return nil, invalid("Prazo de validade inválido")
		}
		product.ExpirationDate = &d
	}

	repo := s.store.Repo()
	if _, err := repo.GetSection(ctx, req.SectionID); err != nil {
		return nil, lookupFailed(err, "ID de categoria inválido")
	}
	if _, err := repo.GetProductByBarcode(ctx, product.Barcode); err == nil {
		return nil, invalid("Código de barras já existe")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check barcode: %w", err)
	}

	if err := repo.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("Código de barras já existe")
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created", zap.Int64("product_id", product.ID))

	message := "Produto cadastrado com sucesso"
	if !s.storeImages(ctx, repo, product.ID, req.Images) {
		message += imageWarning
	}
	detail, err := s.describe(ctx, repo, product)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Message: message, Detail: detail}, nil
}

// Update applies a partial update; admin only
func (s *ProductService) Update(ctx context.Context, caller *models.User, id int64, req UpdateProductRequest) (*ProductResult, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Update")
	defer span.End()

	if !isAdmin(caller, s.adminRoleID) {
		return nil, forbidden("Apenas Admins podem editar produtos")
	}

	repo := s.store.Repo()
	if _, err := repo.GetProduct(ctx, id); err != nil {
		return nil, notFound(err, ErrProductNotFound)
	}

	var u store.ProductUpdate
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if desc == "" {
			return nil, invalid("Descrição inválida")
		}
		u.Description = &desc
	}
	if req.SellValue != nil {
		if req.SellValue.LessThan(minSellValue) {
			return nil, invalid("Preço de venda inválido")
		}
		u.SellValue = req.SellValue
	}
	if req.Barcode != nil {
		barcode := strings.TrimSpace(*req.Barcode)
		if barcode == "" {
			return nil, invalid("Barcode inválido")
		}
		if other, err := repo.GetProductByBarcode(ctx, barcode); err == nil && other.ID != id {
			return nil, invalid("Barcode já existe")
		}
		u.Barcode = &barcode
	}
	if req.SectionID != nil {
		if _, err := repo.GetSection(ctx, *req.SectionID); err != nil {
			return nil, lookupFailed(err, "ID de categoria inválido")
		}
		u.SectionID = req.SectionID
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, invalid("Estoque inválido")
		}
		u.Stock = req.Stock
	}
	if req.ExpirationDate != nil {
		d, err := models.ParseDate(*req.ExpirationDate)
		if err != nil {
			return nil, invalid("Prazo de validade inválido")
		}
		u.ExpirationDate = &d
	}
	if u.Empty() && len(req.Images) == 0 {
		return nil, invalid("Necessita de ao menos uma informação para atualizar")
	}

	if !u.Empty() {
		if err := repo.UpdateProduct(ctx, id, u); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return nil, ErrProductNotFound
			case errors.Is(err, store.ErrDuplicate):
				return nil, invalid("Barcode já existe")
			}
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}

	message := "Produto atualizado com sucesso"
	if !s.storeImages(ctx, repo, id, req.Images) {
		message += imageWarning
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Message: message, Detail: detail}, nil
}

// Delete removes a product no order refers to; admin only
func (s *ProductService) Delete(ctx context.Context, caller *models.User, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.Delete")
	defer span.End()

	if !isAdmin(caller, s.adminRoleID) {
		return forbidden("Apenas Admins podem deletar produtos")
	}
	if err := s.store.Repo().DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrInUse) {
			return invalid("Produto possui ordens vinculadas")
		}
		return notFound(err, ErrProductNotFound)
	}
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

// storeImages decodes and saves every image, reporting whether all succeeded
func (s *ProductService) storeImages(ctx context.Context, repo store.Repository, productID int64, images []string) bool {
	ok := true
	for i, img := range images {
		data, err := base64.StdEncoding.DecodeString(img)
		if err == nil && len(data) == 0 {
			err = errors.New("empty image")
		}
		if err == nil {
			err = repo.AddProductImage(ctx, productID, data)
		}
		if err != nil {
			ok = false
			util.ProductImagesFailedTotal.Inc()
			s.logger.Warn("Failed to store product image",
				zap.Int64("product_id", productID),
				zap.Int("index", i),
				zap.Error(err))
		}
	}
	return ok
}

func (s *ProductService) describe(ctx context.Context, repo store.Repository, p *models.Product) (*models.ProductDetail, error) {
	section, err := repo.GetSection(ctx, p.SectionID)
	if err != nil {
		return nil, notFound(err, ErrSectionNotFound)
	}
	raw, err := repo.ListProductImages(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}
	return &models.ProductDetail{
		ID:             p.ID,
		Description:    p.Description,
		SellValue:      p.SellValue,
		Barcode:        p.Barcode,
		SectionName:    section.Name,
		Stock:          p.Stock,
		ExpirationDate: p.ExpirationDate,
		Images:         encodeImages(raw),
	}, nil
}

// encodeImages renders stored image bytes as base64 strings
func encodeImages(raw [][]byte) []string {
	images := make([]string, len(raw))
	for i, data := range raw {
		images[i] = base64.StdEncoding.EncodeToString(data)
	}
	return images
}
