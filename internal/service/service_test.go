package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/picking-system/internal/model"
	"github.com/mmeshcher/picking-system/internal/repository"
)

type stubRepo struct {
	products  map[string]*model.Product
	processed map[string]bool
	applyErr  error
	logs      []model.ActivityLog
	sessions  []string
}

func newStubRepo(products ...model.Product) *stubRepo {
	r := &stubRepo{
		products:  make(map[string]*model.Product),
		processed: make(map[string]bool),
	}
	for i := range products {
		p := products[i]
		r.products[p.Code] = &p
	}
	return r
}

func (r *stubRepo) ListProducts(ctx context.Context) ([]model.Product, error) {
	var res []model.Product
	for _, p := range r.products {
		res = append(res, *p)
	}
	return res, nil
}

func (r *stubRepo) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	p, ok := r.products[code]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubRepo) GetProductByBarcode(ctx context.Context, ean string) (*model.Product, error) {
	for _, p := range r.products {
		if p.HasBarcode(ean) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (r *stubRepo) ApplyPicks(ctx context.Context, orderID, operator string, picks []model.LineItem) (int, int, error) {
	if r.applyErr != nil {
		return 0, 0, r.applyErr
	}
	if r.processed[orderID] {
		return 0, 0, repository.ErrOrderAlreadyProcessed
	}
	r.processed[orderID] = true

	applied, missing := 0, 0
	for _, pick := range picks {
		if pick.Picked == 0 {
			continue
		}
		p, ok := r.products[pick.Code]
		if !ok {
			missing++
			continue
		}
		p.Quantity -= int64(pick.Picked)
		applied++
	}
	return applied, missing, nil
}

func (r *stubRepo) InsertActivityLogs(ctx context.Context, logs []model.ActivityLog) (int, error) {
	inserted := 0
	for _, l := range logs {
		dup := false
		for _, seen := range r.logs {
			if seen.ID == l.ID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.logs = append(r.logs, l)
		inserted++
	}
	return inserted, nil
}

func (r *stubRepo) CreateSession(ctx context.Context, id, operator string, startedAt time.Time) error {
	r.sessions = append(r.sessions, id)
	return nil
}

func (r *stubRepo) InsertProduct(ctx context.Context, p model.Product) error {
	cp := p
	r.products[p.Code] = &cp
	return nil
}

func (r *stubRepo) UpdateQuantityPrice(ctx context.Context, code string, quantity, priceCents int64) error {
	p, ok := r.products[code]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Quantity = quantity
	p.PriceCents = priceCents
	return nil
}

func (r *stubRepo) AddProductBarcode(ctx context.Context, code, ean string) error {
	p, ok := r.products[code]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.AddBarcode(ean)
	return nil
}

func (r *stubRepo) UpdateDescription(ctx context.Context, code, description string) error {
	p, ok := r.products[code]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Description = description
	return nil
}

func (r *stubRepo) Ping(ctx context.Context) error { return nil }

type stubFiles struct {
	orders    map[string]string
	archived  []string
	documents map[string][]byte
}

func newStubFiles() *stubFiles {
	return &stubFiles{
		orders:    make(map[string]string),
		documents: make(map[string][]byte),
	}
}

func (f *stubFiles) List() ([]model.OrderFileInfo, error) {
	var infos []model.OrderFileInfo
	for name := range f.orders {
		infos = append(infos, model.OrderFileInfo{FileName: name})
	}
	return infos, nil
}

func (f *stubFiles) Load(fileName string) (*model.Order, error) {
	if _, ok := f.orders[fileName]; !ok {
		return nil, ErrOrderFileNotFound
	}
	return &model.Order{ID: fileName, FileName: fileName}, nil
}

func (f *stubFiles) Archive(fileName string) error {
	if _, ok := f.orders[fileName]; !ok {
		return ErrOrderFileNotFound
	}
	delete(f.orders, fileName)
	f.archived = append(f.archived, fileName)
	return nil
}

func (f *stubFiles) SaveDocument(name string, data []byte) error {
	f.documents[name] = data
	return nil
}

func TestCompleteOrder_PartialApplication(t *testing.T) {
	repo := newStubRepo(
		model.Product{Code: "A", Quantity: 50},
		model.Product{Code: "B", Quantity: 20},
	)
	files := newStubFiles()
	files.orders["order1.csv"] = "data"

	svc := NewService(repo, files, zap.NewNop())

	order := &model.Order{
		ID:       "order1",
		FileName: "order1.csv",
		Operator: "Mario",
		Items: []model.LineItem{
			{Code: "A", Picked: 5},
			{Code: "B", Picked: 3},
			{Code: "C", Picked: 2},
		},
	}

	res := svc.CompleteOrder(context.Background(), order)

	if !res.Success {
		t.Fatalf("completion must succeed despite lookup errors: %+v", res)
	}
	if res.UpdatesApplied != 2 || res.LookupErrors != 1 {
		t.Fatalf("applied/errors = %d/%d, want 2/1", res.UpdatesApplied, res.LookupErrors)
	}
	if repo.products["A"].Quantity != 45 || repo.products["B"].Quantity != 17 {
		t.Fatalf("quantities = %d/%d, want 45/17",
			repo.products["A"].Quantity, repo.products["B"].Quantity)
	}
	if !res.DocumentGenerated || len(files.documents) != 1 {
		t.Fatalf("shipment document not generated")
	}
	if !res.FileMoved || len(files.archived) != 1 {
		t.Fatalf("order file not archived")
	}
}

func TestCompleteOrder_ReplayIsIdempotent(t *testing.T) {
	repo := newStubRepo(model.Product{Code: "A", Quantity: 50})
	files := newStubFiles()
	svc := NewService(repo, files, zap.NewNop())

	order := &model.Order{
		ID:       "order1",
		Operator: "Mario",
		Items:    []model.LineItem{{Code: "A", Picked: 5}},
	}

	first := svc.CompleteOrder(context.Background(), order)
	second := svc.CompleteOrder(context.Background(), order)

	if !first.Success || first.AlreadyProcessed {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if !second.Success || !second.AlreadyProcessed {
		t.Fatalf("replay must be confirmed without reapplying: %+v", second)
	}
	if second.UpdatesApplied != 0 {
		t.Fatalf("replay applied updates: %+v", second)
	}
	if repo.products["A"].Quantity != 45 {
		t.Fatalf("quantity = %d, want 45 after single application", repo.products["A"].Quantity)
	}
}

func TestCompleteOrder_RepositoryError(t *testing.T) {
	repo := newStubRepo()
	repo.applyErr = errors.New("connection lost")
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	res := svc.CompleteOrder(context.Background(), &model.Order{ID: "order1"})

	if res.Success {
		t.Fatalf("completion must fail on repository error")
	}
	if res.Error == "" {
		t.Fatalf("error message must be set")
	}
}

type recordingConfirmer struct {
	acceptNew  bool
	acceptEAN  bool
	acceptDesc bool
	asked      []string
}

func (c *recordingConfirmer) ConfirmNewProduct(p model.Product) bool {
	c.asked = append(c.asked, "new:"+p.Code)
	return c.acceptNew
}

func (c *recordingConfirmer) ConfirmBarcode(code, ean string) bool {
	c.asked = append(c.asked, "ean:"+code+":"+ean)
	return c.acceptEAN
}

func (c *recordingConfirmer) ConfirmDescription(code, old, new string) bool {
	c.asked = append(c.asked, "desc:"+code)
	return c.acceptDesc
}

func TestMergeInventory_AutoAndConfirmed(t *testing.T) {
	repo := newStubRepo(model.Product{
		Code: "A", Description: "Pasta", Quantity: 10, PriceCents: 100, Barcodes: []string{"111"},
	})
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	confirm := &recordingConfirmer{acceptNew: true, acceptEAN: true, acceptDesc: true}

	incoming := []model.Product{
		{Code: "A", Description: "Pasta fresca", Quantity: 25, PriceCents: 120, Barcodes: []string{"111", "222"}},
		{Code: "NEW", Description: "Olio", Quantity: 5, PriceCents: 890},
	}

	summary, err := svc.MergeInventory(context.Background(), incoming, confirm)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if summary.QuantitiesUpdated != 1 || summary.PricesUpdated != 1 {
		t.Fatalf("qty/price updates = %d/%d, want 1/1", summary.QuantitiesUpdated, summary.PricesUpdated)
	}
	if summary.BarcodesAdded != 1 || summary.DescriptionsUpdated != 1 || summary.NewProducts != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// Количество и цена не спрашивают подтверждения.
	for _, q := range confirm.asked {
		if q == "qty:A" || q == "price:A" {
			t.Fatalf("quantity or price asked for confirmation: %v", confirm.asked)
		}
	}

	a := repo.products["A"]
	if a.Quantity != 25 || a.PriceCents != 120 || a.Description != "Pasta fresca" {
		t.Fatalf("product not updated: %+v", a)
	}
	if !a.HasBarcode("222") {
		t.Fatalf("barcode not added: %v", a.Barcodes)
	}
	if _, ok := repo.products["NEW"]; !ok {
		t.Fatalf("new product not inserted")
	}
}

func TestMergeInventory_DeclinedChanges(t *testing.T) {
	repo := newStubRepo(model.Product{Code: "A", Description: "Pasta", Quantity: 10})
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	confirm := &recordingConfirmer{} // всё отклоняется

	incoming := []model.Product{
		{Code: "A", Description: "Altro", Quantity: 10, Barcodes: []string{"999"}},
		{Code: "NEW", Description: "Olio"},
	}

	summary, err := svc.MergeInventory(context.Background(), incoming, confirm)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if summary.NewProducts != 0 || summary.BarcodesAdded != 0 || summary.DescriptionsUpdated != 0 {
		t.Fatalf("declined changes applied: %+v", summary)
	}
	if repo.products["A"].Description != "Pasta" {
		t.Fatalf("description overwritten despite decline")
	}
	if _, ok := repo.products["NEW"]; ok {
		t.Fatalf("declined product inserted")
	}
}

func TestMergeInventory_MatchesByBarcodeWhenCodeChanged(t *testing.T) {
	repo := newStubRepo(model.Product{
		Code: "OLD", Description: "Pasta", Quantity: 10, PriceCents: 100, Barcodes: []string{"8001"},
	})
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	confirm := &recordingConfirmer{acceptNew: true}

	// Учётная система перекодировала товар; штрихкод остался прежним.
	incoming := []model.Product{{Code: "NEW", Quantity: 30, Barcodes: []string{"8001"}}}

	summary, err := svc.MergeInventory(context.Background(), incoming, confirm)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if summary.NewProducts != 0 {
		t.Fatalf("barcode match treated as new product: %+v", summary)
	}
	if summary.QuantitiesUpdated != 1 || repo.products["OLD"].Quantity != 30 {
		t.Fatalf("existing product not updated via barcode match: %+v", repo.products["OLD"])
	}
}

func TestMergeInventory_BlankFieldsNeverOverwrite(t *testing.T) {
	repo := newStubRepo(model.Product{
		Code: "A", Description: "Pasta", Quantity: 10, PriceCents: 150,
	})
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	confirm := &recordingConfirmer{acceptNew: true, acceptEAN: true, acceptDesc: true}

	// Пустые описание и цена в выгрузке.
	incoming := []model.Product{{Code: "A", Quantity: 10}}

	summary, err := svc.MergeInventory(context.Background(), incoming, confirm)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if len(confirm.asked) != 0 {
		t.Fatalf("blank fields must not prompt: %v", confirm.asked)
	}
	if summary.PricesUpdated != 0 || summary.DescriptionsUpdated != 0 {
		t.Fatalf("blank fields overwrote data: %+v", summary)
	}
	if repo.products["A"].PriceCents != 150 || repo.products["A"].Description != "Pasta" {
		t.Fatalf("product modified by blanks: %+v", repo.products["A"])
	}
}

func TestRecordLogs_SkipsDuplicates(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	logs := []model.ActivityLog{
		{ID: "log-1", Type: model.LogItemPicked},
		{ID: "log-1", Type: model.LogItemPicked},
		{ID: "log-2", Type: model.LogOrderCompleted},
	}

	inserted, err := svc.RecordLogs(context.Background(), logs)
	if err != nil {
		t.Fatalf("record logs: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2", inserted)
	}
}

func TestStartSession(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, newStubFiles(), zap.NewNop())

	id, err := svc.StartSession(context.Background(), "Mario")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if id == "" {
		t.Fatalf("empty session id")
	}
	if len(repo.sessions) != 1 || repo.sessions[0] != id {
		t.Fatalf("session not stored: %v", repo.sessions)
	}
}
