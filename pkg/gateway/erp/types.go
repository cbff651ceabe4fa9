package erp

// Product is the ERP catalog item. Field names follow the ERP's v3 API.
type Product struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"nome"`
	Code        string    `json:"codigo"`
	Price       float64   `json:"preco"`
	Type        string    `json:"tipo"`
	Situation   string    `json:"situacao"`
	Format      string    `json:"formato"`
	Unit        string    `json:"unidade"`
	GrossWeight float64   `json:"pesoBruto,omitempty"`
	NetWeight   float64   `json:"pesoLiquido,omitempty"`
	ShortDesc   string    `json:"descricaoCurta,omitempty"`
	Taxation    *Taxation `json:"tributacao,omitempty"`
}

type Taxation struct {
	NCM    string `json:"ncm"`
	Origin int    `json:"origem"`
}

type Address struct {
	Street     string `json:"endereco"`
	Number     string `json:"numero"`
	Complement string `json:"complemento,omitempty"`
	District   string `json:"bairro"`
	CEP        string `json:"cep"`
	City       string `json:"municipio"`
	State      string `json:"uf"`
}

type ContactAddress struct {
	General Address `json:"geral"`
}

// Contact is a customer or carrier registered at the ERP.
type Contact struct {
	ID                int64           `json:"id,omitempty"`
	Name              string          `json:"nome"`
	Document          string          `json:"numeroDocumento"`
	PersonType        string          `json:"tipo"`
	StateRegistration string          `json:"ie,omitempty"`
	Email             string          `json:"email,omitempty"`
	Phone             string          `json:"telefone,omitempty"`
	Situation         string          `json:"situacao,omitempty"`
	Address           *ContactAddress `json:"endereco,omitempty"`
}

type Ref struct {
	ID int64 `json:"id"`
}

type OrderItem struct {
	Product     Ref     `json:"produto"`
	Code        string  `json:"codigo"`
	Description string  `json:"descricao"`
	Quantity    int     `json:"quantidade"`
	Value       float64 `json:"valor"`
	Unit        string  `json:"unidade"`
}

type Volume struct {
	Service      string `json:"servico,omitempty"`
	TrackingCode string `json:"codigoRastreamento,omitempty"`
}

type Transport struct {
	FreightBy int      `json:"fretePorConta"`
	Freight   float64  `json:"frete"`
	Carrier   *Ref     `json:"contato,omitempty"`
	Volumes   []Volume `json:"volumes,omitempty"`
}

// Order is the ERP sales order.
type Order struct {
	ID          int64       `json:"id,omitempty"`
	StoreNumber string      `json:"numeroLoja"`
	Date        string      `json:"data"`
	Contact     Ref         `json:"contato"`
	Items       []OrderItem `json:"itens"`
	Transport   Transport   `json:"transporte"`
	Discount    *Discount   `json:"desconto,omitempty"`
	Notes       string      `json:"observacoes,omitempty"`
}

type Discount struct {
	Value float64 `json:"valor"`
	Unit  string  `json:"unidade"`
}

type FiscalItem struct {
	Code           string  `json:"codigo"`
	Description    string  `json:"descricao"`
	Unit           string  `json:"unidade"`
	Quantity       int     `json:"quantidade"`
	Value          float64 `json:"valor"`
	Type           string  `json:"tipo"`
	Classification string  `json:"classificacaoFiscal"`
	Origin         int     `json:"origem"`
}

type FiscalParty struct {
	Name              string  `json:"nome"`
	PersonType        string  `json:"tipoPessoa"`
	Document          string  `json:"numeroDocumento"`
	StateRegistration string  `json:"ie,omitempty"`
	Email             string  `json:"email,omitempty"`
	Address           Address `json:"endereco"`
}

type FiscalCarrier struct {
	Name     string `json:"nome"`
	Document string `json:"numeroDocumento"`
}

type FiscalTransport struct {
	FreightBy int            `json:"fretePorConta"`
	Freight   float64        `json:"frete"`
	Carrier   *FiscalCarrier `json:"transportador,omitempty"`
}

// FiscalDocumentRequest is the NF-e emission payload.
type FiscalDocumentRequest struct {
	Type            int             `json:"tipo"`
	OperationDate   string          `json:"dataOperacao"`
	Contact         FiscalParty     `json:"contato"`
	NatureOperation *Ref            `json:"naturezaOperacao,omitempty"`
	Purpose         int             `json:"finalidade"`
	Items           []FiscalItem    `json:"itens"`
	Transport       FiscalTransport `json:"transporte"`
	StoreOrder      string          `json:"numeroPedidoLoja,omitempty"`
}

// FiscalDocument is the ERP's view of an NF-e.
type FiscalDocument struct {
	ID        int64  `json:"id"`
	Number    string `json:"numero"`
	Series    string `json:"serie"`
	Situation int64  `json:"situacao"`
	AccessKey string `json:"chaveAcesso"`
	Message   string `json:"mensagem,omitempty"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}
