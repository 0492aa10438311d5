package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"retail-service/internal/models"
)

// MemoryStore is an in-memory Gateway seeded with the same lookup rows as
// the SQL migration. WithTx serialises transactions behind one mutex and
// restores a snapshot when fn fails.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

var _ Gateway = (*MemoryStore)(nil)

type memState struct {
	seq       map[string]int64
	sections  map[int64]models.Section
	statuses  map[int64]models.OrderStatus
	roles     []int64
	products  map[int64]models.Product
	images    map[int64][][]byte
	clients   map[int64]models.Client
	orders    map[int64]models.Order
	lines     map[int64]map[int64]int
	users     map[int64]models.User
	tokens    map[string]models.Token
	processed map[string]string
	timeline  []models.TimelineEntry
}

// NewMemoryStore creates an empty store with seeded roles, sections and statuses
func NewMemoryStore() *MemoryStore {
	st := &memState{
		seq:      map[string]int64{},
		sections: map[int64]models.Section{},
		statuses: map[int64]models.OrderStatus{
			1: {ID: 1, Description: models.StatusCancelled, Closed: true},
			2: {ID: 2, Description: models.StatusNew},
			3: {ID: 3, Description: models.StatusPicking},
			4: {ID: 4, Description: models.StatusInTransit},
			5: {ID: 5, Description: models.StatusDelivered, Closed: true},
		},
		roles:     []int64{1, 2},
		products:  map[int64]models.Product{},
		images:    map[int64][][]byte{},
		clients:   map[int64]models.Client{},
		orders:    map[int64]models.Order{},
		lines:     map[int64]map[int64]int{},
		users:     map[int64]models.User{},
		tokens:    map[string]models.Token{},
		processed: map[string]string{},
	}
	for i, name := range []string{"Bebidas", "Laticínios", "Limpeza", "Hortifruti", "Vestuário"} {
		id := int64(i + 1)
		st.sections[id] = models.Section{ID: id, Name: name}
	}
	st.seq["sections"] = int64(len(st.sections))
	st.seq["order_status"] = int64(len(st.statuses))
	return &MemoryStore{state: st}
}

func (st *memState) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

func (st *memState) clone() *memState {
	cp := &memState{
		seq:       make(map[string]int64, len(st.seq)),
		sections:  make(map[int64]models.Section, len(st.sections)),
		statuses:  make(map[int64]models.OrderStatus, len(st.statuses)),
		roles:     append([]int64(nil), st.roles...),
		products:  make(map[int64]models.Product, len(st.products)),
		images:    make(map[int64][][]byte, len(st.images)),
		clients:   make(map[int64]models.Client, len(st.clients)),
		orders:    make(map[int64]models.Order, len(st.orders)),
		lines:     make(map[int64]map[int64]int, len(st.lines)),
		users:     make(map[int64]models.User, len(st.users)),
		tokens:    make(map[string]models.Token, len(st.tokens)),
		processed: make(map[string]string, len(st.processed)),
		timeline:  append([]models.TimelineEntry(nil), st.timeline...),
	}
	for k, v := range st.seq {
		cp.seq[k] = v
	}
	for k, v := range st.sections {
		cp.sections[k] = v
	}
	for k, v := range st.statuses {
		cp.statuses[k] = v
	}
	for k, v := range st.products {
		cp.products[k] = v
	}
	for k, v := range st.images {
		cp.images[k] = append([][]byte(nil), v...)
	}
	for k, v := range st.clients {
		cp.clients[k] = v
	}
	for k, v := range st.orders {
		cp.orders[k] = v
	}
	for k, v := range st.lines {
		items := make(map[int64]int, len(v))
		for pid, qty := range v {
			items[pid] = qty
		}
		cp.lines[k] = items
	}
	for k, v := range st.users {
		cp.users[k] = v
	}
	for k, v := range st.tokens {
		cp.tokens[k] = v
	}
	for k, v := range st.processed {
		cp.processed[k] = v
	}
	return cp
}

// Repo returns a repository that locks the store on every call
func (m *MemoryStore) Repo() Repository {
	return &memRepo{store: m}
}

// WithTx holds the store lock for the whole of fn and rolls back unless it
// returns nil
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	committed := false
	defer func() {
		if !committed {
			m.state = snapshot
		}
	}()
	if err := fn(&memRepo{store: m, inTx: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// AddSection inserts a section; test fixtures use it to extend the seed
func (m *MemoryStore) AddSection(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.state.next("sections")
	m.state.sections[id] = models.Section{ID: id, Name: name}
	return id
}

type memRepo struct {
	store *MemoryStore
	inTx  bool
}

var _ Repository = (*memRepo)(nil)

// lock acquires the store unless the repository already runs inside WithTx
func (r *memRepo) lock() (*memState, func()) {
	if r.inTx {
		return r.store.state, func() {}
	}
	r.store.mu.Lock()
	return r.store.state, r.store.mu.Unlock
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func window[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// catalog

func (r *memRepo) FindSectionID(ctx context.Context, name string) (int64, error) {
	st, unlock := r.lock()
	defer unlock()
	var best int64
	for id, s := range st.sections {
		if containsFold(s.Name, name) && (best == 0 || id < best) {
			best = id
		}
	}
	if best == 0 {
		return 0, ErrNotFound
	}
	return best, nil
}

func (r *memRepo) GetSection(ctx context.Context, id int64) (*models.Section, error) {
	st, unlock := r.lock()
	defer unlock()
	s, ok := st.sections[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *memRepo) FindStatusID(ctx context.Context, name string) (int64, error) {
	st, unlock := r.lock()
	defer unlock()
	var best int64
	for id, s := range st.statuses {
		if containsFold(s.Description, name) && (best == 0 || id < best) {
			best = id
		}
	}
	if best == 0 {
		return 0, ErrNotFound
	}
	return best, nil
}

func (r *memRepo) GetStatus(ctx context.Context, id int64) (*models.OrderStatus, error) {
	st, unlock := r.lock()
	defer unlock()
	s, ok := st.statuses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *memRepo) GetStatusByDescription(ctx context.Context, description string) (*models.OrderStatus, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, s := range st.statuses {
		if strings.EqualFold(s.Description, description) {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// products

func (r *memRepo) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	st, unlock := r.lock()
	defer unlock()
	p, ok := st.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, p := range st.products {
		if p.Barcode == barcode {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	st, unlock := r.lock()
	defer unlock()
	seen := make(map[int64]bool, len(ids))
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := st.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) AdjustStock(ctx context.Context, id int64, delta int) error {
	st, unlock := r.lock()
	defer unlock()
	p, ok := st.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock+delta < 0 {
		return ErrStockConflict
	}
	p.Stock += delta
	st.products[id] = p
	return nil
}

func (r *memRepo) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	st, unlock := r.lock()
	defer unlock()
	out := make([]models.Product, 0)
	for _, p := range st.products {
		if f.SectionID != nil && p.SectionID != *f.SectionID {
			continue
		}
		if f.MaxSellValue != nil && p.SellValue.GreaterThan(*f.MaxSellValue) {
			continue
		}
		if f.OnlyAvailable && p.Stock <= 0 {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, f.Limit, f.Offset), nil
}

func (st *memState) barcodeTaken(barcode string, except int64) bool {
	for id, p := range st.products {
		if id != except && p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (r *memRepo) CreateProduct(ctx context.Context, p *models.Product) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.sections[p.SectionID]; !ok {
		return fmt.Errorf("%w: products_section_id_fkey", ErrInUse)
	}
	if st.barcodeTaken(p.Barcode, 0) {
		return fmt.Errorf("%w: products_barcode_key", ErrDuplicate)
	}
	p.ID = st.next("products")
	st.products[p.ID] = *p
	return nil
}

func (r *memRepo) UpdateProduct(ctx context.Context, id int64, u ProductUpdate) error {
	if u.Empty() {
		return fmt.Errorf("empty product update")
	}
	st, unlock := r.lock()
	defer unlock()
	p, ok := st.products[id]
	if !ok {
		return ErrNotFound
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.SellValue != nil {
		p.SellValue = *u.SellValue
	}
	if u.Barcode != nil {
		if st.barcodeTaken(*u.Barcode, id) {
			return fmt.Errorf("%w: products_barcode_key", ErrDuplicate)
		}
		p.Barcode = *u.Barcode
	}
	if u.SectionID != nil {
		if _, ok := st.sections[*u.SectionID]; !ok {
			return fmt.Errorf("%w: products_section_id_fkey", ErrInUse)
		}
		p.SectionID = *u.SectionID
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.ExpirationDate != nil {
		d := *u.ExpirationDate
		p.ExpirationDate = &d
	}
	st.products[id] = p
	return nil
}

func (r *memRepo) DeleteProduct(ctx context.Context, id int64) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.products[id]; !ok {
		return ErrNotFound
	}
	for _, items := range st.lines {
		if _, ok := items[id]; ok {
			return fmt.Errorf("%w: orders_products_product_id_fkey", ErrInUse)
		}
	}
	delete(st.products, id)
	delete(st.images, id)
	return nil
}

func (r *memRepo) AddProductImage(ctx context.Context, productID int64, data []byte) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.products[productID]; !ok {
		return fmt.Errorf("%w: product_images_product_id_fkey", ErrInUse)
	}
	st.images[productID] = append(st.images[productID], append([]byte(nil), data...))
	return nil
}

func (r *memRepo) ListProductImages(ctx context.Context, productID int64) ([][]byte, error) {
	st, unlock := r.lock()
	defer unlock()
	return append([][]byte{}, st.images[productID]...), nil
}

// clients

func (r *memRepo) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	st, unlock := r.lock()
	defer unlock()
	c, ok := st.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *memRepo) findClient(match func(models.Client) bool) (*models.Client, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, c := range st.clients {
		if match(c) {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) FindClientByCPF(ctx context.Context, cpf string) (*models.Client, error) {
	return r.findClient(func(c models.Client) bool { return c.CPF == cpf })
}

func (r *memRepo) FindClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	return r.findClient(func(c models.Client) bool { return strings.EqualFold(c.Email, email) })
}

func (r *memRepo) ListClients(ctx context.Context, f ClientFilter) ([]models.Client, error) {
	st, unlock := r.lock()
	defer unlock()
	out := make([]models.Client, 0)
	for _, c := range st.clients {
		if f.Query != "" && !containsFold(c.Name, f.Query) && !containsFold(c.Email, f.Query) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, f.Limit, f.Offset), nil
}

func (st *memState) clientConflict(c models.Client, except int64) error {
	for id, other := range st.clients {
		if id == except {
			continue
		}
		if other.CPF == c.CPF {
			return fmt.Errorf("%w: clients_cpf_key", ErrDuplicate)
		}
		if other.Email == c.Email {
			return fmt.Errorf("%w: clients_email_key", ErrDuplicate)
		}
	}
	return nil
}

func (r *memRepo) CreateClient(ctx context.Context, c *models.Client) error {
	st, unlock := r.lock()
	defer unlock()
	if err := st.clientConflict(*c, 0); err != nil {
		return err
	}
	c.ID = st.next("clients")
	st.clients[c.ID] = *c
	return nil
}

func (r *memRepo) UpdateClient(ctx context.Context, id int64, u ClientUpdate) error {
	if u.Name == nil && u.Email == nil && u.CPF == nil {
		return fmt.Errorf("empty client update")
	}
	st, unlock := r.lock()
	defer unlock()
	c, ok := st.clients[id]
	if !ok {
		return ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.CPF != nil {
		c.CPF = *u.CPF
	}
	if err := st.clientConflict(c, id); err != nil {
		return err
	}
	st.clients[id] = c
	return nil
}

func (r *memRepo) DeleteClient(ctx context.Context, id int64) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.clients[id]; !ok {
		return ErrNotFound
	}
	for _, o := range st.orders {
		if o.ClientID == id {
			return fmt.Errorf("%w: orders_client_id_fkey", ErrInUse)
		}
	}
	delete(st.clients, id)
	return nil
}

// orders

func (r *memRepo) CreateOrder(ctx context.Context, o *models.Order) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.clients[o.ClientID]; !ok {
		return fmt.Errorf("%w: orders_client_id_fkey", ErrInUse)
	}
	if _, ok := st.statuses[o.StatusID]; !ok {
		return fmt.Errorf("%w: orders_status_fkey", ErrInUse)
	}
	o.ID = st.next("orders")
	o.CreatedAt = time.Now().UTC()
	st.orders[o.ID] = *o
	st.lines[o.ID] = map[int64]int{}
	return nil
}

func (r *memRepo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	st, unlock := r.lock()
	defer unlock()
	o, ok := st.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *memRepo) SetOrderStatus(ctx context.Context, id, statusID int64) error {
	st, unlock := r.lock()
	defer unlock()
	o, ok := st.orders[id]
	if !ok {
		return ErrNotFound
	}
	if _, ok := st.statuses[statusID]; !ok {
		return fmt.Errorf("%w: orders_status_fkey", ErrInUse)
	}
	o.StatusID = statusID
	st.orders[id] = o
	return nil
}

func (r *memRepo) DeleteOrder(ctx context.Context, id int64) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.orders[id]; !ok {
		return ErrNotFound
	}
	delete(st.orders, id)
	delete(st.lines, id)
	return nil
}

func (r *memRepo) ListOrderIDs(ctx context.Context, f OrderFilter) ([]int64, error) {
	st, unlock := r.lock()
	defer unlock()
	ids := make([]int64, 0)
	for id, o := range st.orders {
		if o.CreatedAt.Before(f.From) || o.CreatedAt.After(f.To) {
			continue
		}
		if f.OrderID != nil && id != *f.OrderID {
			continue
		}
		if f.StatusID != nil && o.StatusID != *f.StatusID {
			continue
		}
		if f.ClientID != nil && o.ClientID != *f.ClientID {
			continue
		}
		if f.SectionID != nil && !st.orderHasSection(id, *f.SectionID) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return window(ids, f.Limit, f.Offset), nil
}

func (st *memState) orderHasSection(orderID, sectionID int64) bool {
	for pid := range st.lines[orderID] {
		if p, ok := st.products[pid]; ok && p.SectionID == sectionID {
			return true
		}
	}
	return false
}

func (r *memRepo) GetLineItem(ctx context.Context, orderID, productID int64) (*models.OrderLineItem, error) {
	st, unlock := r.lock()
	defer unlock()
	qty, ok := st.lines[orderID][productID]
	if !ok {
		return nil, ErrNotFound
	}
	return &models.OrderLineItem{OrderID: orderID, ProductID: productID, Quantity: qty}, nil
}

func (r *memRepo) AddLineItem(ctx context.Context, orderID, productID int64, quantity int) error {
	st, unlock := r.lock()
	defer unlock()
	items, ok := st.lines[orderID]
	if !ok {
		return fmt.Errorf("%w: orders_products_order_id_fkey", ErrInUse)
	}
	if _, ok := st.products[productID]; !ok {
		return fmt.Errorf("%w: orders_products_product_id_fkey", ErrInUse)
	}
	items[productID] += quantity
	return nil
}

func (r *memRepo) SetLineItemQuantity(ctx context.Context, orderID, productID int64, quantity int) error {
	st, unlock := r.lock()
	defer unlock()
	items := st.lines[orderID]
	if _, ok := items[productID]; !ok {
		return ErrNotFound
	}
	items[productID] = quantity
	return nil
}

func (r *memRepo) DeleteLineItem(ctx context.Context, orderID, productID int64) error {
	st, unlock := r.lock()
	defer unlock()
	items := st.lines[orderID]
	if _, ok := items[productID]; !ok {
		return ErrNotFound
	}
	delete(items, productID)
	return nil
}

func (r *memRepo) ListLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error) {
	st, unlock := r.lock()
	defer unlock()
	out := make([]models.OrderLineItem, 0, len(st.lines[orderID]))
	for pid, qty := range st.lines[orderID] {
		out = append(out, models.OrderLineItem{OrderID: orderID, ProductID: pid, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *memRepo) ListLineItemDetails(ctx context.Context, orderID int64) ([]models.LineItemDetail, error) {
	st, unlock := r.lock()
	defer unlock()
	out := make([]models.LineItemDetail, 0, len(st.lines[orderID]))
	for pid, qty := range st.lines[orderID] {
		p := st.products[pid]
		out = append(out, models.LineItemDetail{
			ProductID:      p.ID,
			Description:    p.Description,
			SellValue:      p.SellValue,
			Barcode:        p.Barcode,
			SectionName:    st.sections[p.SectionID].Name,
			Stock:          p.Stock,
			ExpirationDate: p.ExpirationDate,
			Quantity:       qty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// users

func (r *memRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	st, unlock := r.lock()
	defer unlock()
	u, ok := st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	st, unlock := r.lock()
	defer unlock()
	for _, u := range st.users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) CreateUser(ctx context.Context, u *models.User) error {
	st, unlock := r.lock()
	defer unlock()
	for _, other := range st.users {
		if other.Username == u.Username {
			return fmt.Errorf("%w: users_username_key", ErrDuplicate)
		}
	}
	u.ID = st.next("users")
	st.users[u.ID] = *u
	return nil
}

func (r *memRepo) LowestRoleID(ctx context.Context) (int64, error) {
	st, unlock := r.lock()
	defer unlock()
	if len(st.roles) == 0 {
		return 0, ErrNotFound
	}
	lowest := st.roles[0]
	for _, id := range st.roles[1:] {
		if id > lowest {
			lowest = id
		}
	}
	return lowest, nil
}

func (r *memRepo) SaveToken(ctx context.Context, t models.Token) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.users[t.UserID]; !ok {
		return fmt.Errorf("%w: tokens_user_id_fkey", ErrInUse)
	}
	if _, ok := st.tokens[t.Token]; ok {
		return fmt.Errorf("%w: tokens_token_key", ErrDuplicate)
	}
	st.tokens[t.Token] = t
	return nil
}

func (r *memRepo) GetUserByToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	st, unlock := r.lock()
	defer unlock()
	t, ok := st.tokens[token]
	if !ok || !t.ExpireAt.After(now) {
		return nil, ErrNotFound
	}
	u, ok := st.users[t.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// timeline

func (r *memRepo) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	st, unlock := r.lock()
	defer unlock()
	_, ok := st.processed[eventID]
	return ok, nil
}

func (r *memRepo) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	st, unlock := r.lock()
	defer unlock()
	if _, ok := st.processed[eventID]; !ok {
		st.processed[eventID] = eventType
	}
	return nil
}

func (r *memRepo) AppendTimeline(ctx context.Context, e *models.TimelineEntry) error {
	st, unlock := r.lock()
	defer unlock()
	for _, other := range st.timeline {
		if other.EventID == e.EventID {
			return fmt.Errorf("%w: order_timeline_event_id_key", ErrDuplicate)
		}
	}
	e.ID = st.next("order_timeline")
	st.timeline = append(st.timeline, *e)
	return nil
}

func (r *memRepo) ListTimeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error) {
	st, unlock := r.lock()
	defer unlock()
	out := make([]models.TimelineEntry, 0)
	for _, e := range st.timeline {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}
