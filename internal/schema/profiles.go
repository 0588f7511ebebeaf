package schema

const (
	ColDate         Column = "date"
	ColStoreCode    Column = "store_code"
	ColStore        Column = "store"
	ColCity         Column = "city"
	ColRegion       Column = "region"
	ColCustomer     Column = "customer"
	ColSalesperson  Column = "salesperson"
	ColItem         Column = "item"
	ColQuantity     Column = "quantity"
	ColTotal        Column = "total"
	ColPrice        Column = "price"
	ColProfit       Column = "profit"
	ColWaybill      Column = "waybill"
	ColInvoice      Column = "invoice"
	ColContactName  Column = "contact_name"
	ColContactTitle Column = "contact_title"
	ColPhone        Column = "phone"
	ColEmail        Column = "email"
)

var knownColumns = []Column{
	ColDate, ColStoreCode, ColStore, ColCity, ColRegion, ColCustomer, ColSalesperson,
	ColItem, ColQuantity, ColTotal, ColPrice, ColProfit, ColWaybill, ColInvoice,
	ColContactName, ColContactTitle, ColPhone, ColEmail,
}

// DefaultFallbacks is the offset chain used by the sales workbooks when
// the item and figure columns carry no header text.
const DefaultFallbacks = "item=customer+1,quantity=item+2,price=quantity+1,total=price+1"

// LegacyProfile matches the monthly sales sheets. Store code is listed
// before store so "Mağaza Kodu" is not taken by the store column, and the
// first "Personel" cell belongs to the customer.
func LegacyProfile(scanRows int, fallbacks []Fallback) Profile {
	return Profile{
		Name:     "legacy-sales",
		ScanRows: scanRows,
		Anchor:   ColDate,
		AnyOf:    []Column{ColCity, ColStore},
		Columns: []ColumnSpec{
			{ColDate, []string{"tarih", "tarihi", "satış tarihi", "date", "sale date"}},
			{ColStoreCode, []string{"mağaza kodu", "bayi kodu", "şube kodu", "store code", "kod"}},
			{ColStore, []string{"mağaza", "mağaza adı", "bayi", "şube", "store", "store name"}},
			{ColCity, []string{"şehir", "il", "city"}},
			{ColRegion, []string{"bölge", "region"}},
			{ColCustomer, []string{"müşteri", "müşteri adı", "alıcı", "personel", "purchaser", "customer"}},
			{ColSalesperson, []string{"satış temsilcisi", "plasiyer", "satıcı", "personel", "salesperson", "sales rep"}},
			{ColItem, []string{"ürün", "ürün adı", "malzeme", "açıklama", "item", "product", "description"}},
			{ColQuantity, []string{"adet", "miktar", "qty", "quantity"}},
			{ColTotal, []string{"toplam", "tutar", "toplam tutar", "toplam fiyat", "total", "amount"}},
			{ColPrice, []string{"birim fiyat", "fiyat", "unit price", "price"}},
			{ColProfit, []string{"kâr", "kar", "kazanç", "profit", "margin"}},
			{ColWaybill, []string{"irsaliye", "irsaliye no", "waybill"}},
			{ColInvoice, []string{"fatura", "fatura no", "invoice"}},
		},
		Fallbacks: fallbacks,
		Required:  []Column{ColDate, ColItem},
	}
}

// RosterProfile matches customer contact lists.
func RosterProfile(scanRows int) Profile {
	return Profile{
		Name:     "customer-roster",
		ScanRows: scanRows,
		Anchor:   ColCustomer,
		AnyOf:    []Column{ColContactName, ColPhone, ColEmail},
		Columns: []ColumnSpec{
			{ColCustomer, []string{"müşteri", "müşteri adı", "firma", "firma adı", "cari", "customer", "company"}},
			{ColContactName, []string{"yetkili", "ilgili kişi", "personel", "ad soyad", "contact", "contact name"}},
			{ColContactTitle, []string{"ünvan", "unvan", "görev", "title", "position"}},
			{ColPhone, []string{"telefon", "tel", "gsm", "cep", "phone"}},
			{ColEmail, []string{"e-posta", "eposta", "e-mail", "email", "mail"}},
			{ColStoreCode, []string{"mağaza kodu", "bayi kodu", "store code"}},
			{ColCity, []string{"şehir", "il", "city"}},
			{ColDate, []string{"kayıt tarihi", "tarih", "registered", "date"}},
		},
		Required: []Column{ColCustomer},
	}
}
