package http

import (
	"errors"
	"net/http"
	"time"

	"wisp/internal/auth"
	"wisp/internal/core"
)

const dateLayout = "2006-01-02"

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

type memberResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	HouseholdID int64  `json:"household_id,omitempty"`
}

type categoryResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	HouseholdID  int64  `json:"household_id"`
	Distribution string `json:"distribution_type"`
}

type movementResponse struct {
	ID          int64  `json:"id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	MemberID    int64  `json:"member_id"`
	CategoryID  int64  `json:"category_id"`
	PeriodID    int64  `json:"period_id"`
	Description string `json:"description,omitempty"`
}

type distributionResponse struct {
	MemberID    int64  `json:"member_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	IsPayer     bool   `json:"is_payer"`
}

type salaryResponse struct {
	MemberID    int64  `json:"member_id"`
	PeriodID    int64  `json:"period_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

func toMovementResponse(m core.Movement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		Amount:      m.Amount.String(),
		AmountCents: m.Amount.Cents,
		Date:        m.Date.Format(dateLayout),
		MemberID:    m.MemberID,
		CategoryID:  m.CategoryID,
		PeriodID:    m.PeriodID,
		Description: m.Description,
	}
}

func toDistributionResponses(rows []core.Distribution) []distributionResponse {
	out := make([]distributionResponse, len(rows))
	for i, d := range rows {
		out[i] = distributionResponse{
			MemberID:    d.MemberID,
			Amount:      d.Amount.String(),
			AmountCents: d.Amount.Cents,
			IsPayer:     d.IsPayer,
		}
	}
	return out
}

// currentMember resolves the household member linked to the
// authenticated user.
func (s *Server) currentMember(r *http.Request) (core.Member, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return core.Member{}, errors.New("no authenticated user")
	}
	return s.store.MemberByUser(r.Context(), claims.UserID)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	user, token, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse{UserID: user.ID, Username: user.Username, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	user, token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{UserID: user.ID, Username: user.Username, Token: token})
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	claims := auth.ClaimsFromContext(r.Context())
	if _, err := s.store.MemberByUser(r.Context(), claims.UserID); err == nil {
		respondJSON(w, http.StatusConflict, errorResponse{Error: "user already has a member profile"})
		return
	} else if !errors.Is(err, core.ErrNotFound) {
		respondError(w, r, err)
		return
	}

	member, err := s.store.CreateMember(r.Context(), core.Member{Name: req.Name, UserID: claims.UserID})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, memberResponse{ID: member.ID, Name: member.Name})
}

func (s *Server) handleCurrentMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, memberResponse{ID: member.ID, Name: member.Name, HouseholdID: member.HouseholdID})
}

func (s *Server) handleCreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	household, err := s.store.CreateHousehold(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}{household.ID, household.Name})
}

func (s *Server) handleJoinHousehold(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}

	member, err := s.currentMember(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.store.GetHousehold(r.Context(), householdID); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.JoinHousehold(r.Context(), member.ID, householdID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, memberResponse{ID: member.ID, Name: member.Name, HouseholdID: householdID})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}

	members, err := s.store.MembersOf(r.Context(), householdID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]memberResponse, len(members))
	for i, m := range members {
		out[i] = memberResponse{ID: m.ID, Name: m.Name, HouseholdID: m.HouseholdID}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}

	var req struct {
		Name         string `json:"name"`
		Distribution string `json:"distribution_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	dt, err := core.ParseDistributionType(req.Distribution)
	if err != nil {
		respondError(w, r, err)
		return
	}

	category := core.Category{Name: req.Name, HouseholdID: householdID, Distribution: dt}
	if err := category.Validate(); err != nil {
		respondError(w, r, err)
		return
	}

	saved, err := s.store.CreateCategory(r.Context(), category)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, categoryResponse{
		ID:           saved.ID,
		Name:         saved.Name,
		HouseholdID:  saved.HouseholdID,
		Distribution: string(saved.Distribution),
	})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}

	categories, err := s.store.CategoriesOf(r.Context(), householdID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]categoryResponse, len(categories))
	for i, c := range categories {
		out[i] = categoryResponse{
			ID:           c.ID,
			Name:         c.Name,
			HouseholdID:  c.HouseholdID,
			Distribution: string(c.Distribution),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      string `json:"amount"`
		Date        string `json:"date"`
		CategoryID  int64  `json:"category_id"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	member, err := s.currentMember(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		respondBadRequest(w, "invalid date, expected YYYY-MM-DD")
		return
	}

	movement := core.Movement{
		Amount:      amount,
		Date:        date,
		MemberID:    member.ID,
		CategoryID:  req.CategoryID,
		Description: req.Description,
	}

	saved, rows, err := s.movements.Create(r.Context(), movement)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, struct {
		Movement      movementResponse       `json:"movement"`
		Distributions []distributionResponse `json:"distributions"`
	}{toMovementResponse(saved), toDistributionResponses(rows)})
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}
	token, err := core.ParsePeriodToken(r.URL.Query().Get("period"))
	if err != nil {
		respondBadRequest(w, "invalid period, expected YYYY-MM")
		return
	}

	movements, err := s.movements.ListFor(r.Context(), householdID, token)
	if err != nil {
		respondError(w, r, err)
		return
	}

	type movementWithPolicy struct {
		movementResponse
		Distribution string `json:"distribution_type"`
	}
	out := make([]movementWithPolicy, len(movements))
	for i, m := range movements {
		out[i] = movementWithPolicy{toMovementResponse(m.Movement), string(m.Distribution)}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	movementID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid movement id")
		return
	}

	if _, err := s.store.GetMovement(r.Context(), movementID); err != nil {
		respondError(w, r, err)
		return
	}
	rows, err := s.movements.Distributions(r.Context(), movementID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toDistributionResponses(rows))
}

func (s *Server) handleUpsertSalary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period string `json:"period"`
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	member, err := s.currentMember(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	token, err := core.ParsePeriodToken(req.Period)
	if err != nil {
		respondBadRequest(w, "invalid period, expected YYYY-MM")
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	saved, err := s.salaries.Upsert(r.Context(), member.ID, token, amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, salaryResponse{
		MemberID:    saved.MemberID,
		PeriodID:    saved.PeriodID,
		Amount:      saved.Amount.String(),
		AmountCents: saved.Amount.Cents,
	})
}

func (s *Server) handleListSalaries(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}
	token, err := core.ParsePeriodToken(r.URL.Query().Get("period"))
	if err != nil {
		respondBadRequest(w, "invalid period, expected YYYY-MM")
		return
	}

	salaries, err := s.salaries.SalariesFor(r.Context(), householdID, token)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]salaryResponse, len(salaries))
	for i, sal := range salaries {
		out[i] = salaryResponse{
			MemberID:    sal.MemberID,
			PeriodID:    sal.PeriodID,
			Amount:      sal.Amount.String(),
			AmountCents: sal.Amount.Cents,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePairwiseBalance(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}
	memberA, err := queryID(r, "member_a")
	if err != nil {
		respondBadRequest(w, "invalid member_a")
		return
	}
	memberB, err := queryID(r, "member_b")
	if err != nil {
		respondBadRequest(w, "invalid member_b")
		return
	}

	balance, err := s.balances.Pairwise(r.Context(), householdID, memberA, memberB)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		YouOwe  string `json:"you_owe"`
		OwesYou string `json:"owes_you"`
		Net     string `json:"net"`
	}{balance.YouOwe.String(), balance.OwesYou.String(), balance.Net.String()})
}

func (s *Server) handleMemberTotals(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid member id")
		return
	}

	if _, err := s.store.GetMember(r.Context(), memberID); err != nil {
		respondError(w, r, err)
		return
	}
	totals, err := s.balances.Totals(r.Context(), memberID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		TotalPaid string `json:"total_paid"`
		TotalOwed string `json:"total_owed"`
		Balance   string `json:"balance"`
	}{totals.TotalPaid.String(), totals.TotalOwed.String(), totals.Balance.String()})
}

func (s *Server) handleHouseholdSummary(w http.ResponseWriter, r *http.Request) {
	householdID, err := pathID(r)
	if err != nil {
		respondBadRequest(w, "invalid household id")
		return
	}

	summaries, err := s.balances.HouseholdSummary(r.Context(), householdID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	type summaryEntry struct {
		Member    memberResponse `json:"member"`
		TotalPaid string         `json:"total_paid"`
		TotalOwed string         `json:"total_owed"`
		Balance   string         `json:"balance"`
	}
	out := make([]summaryEntry, len(summaries))
	for i, sum := range summaries {
		out[i] = summaryEntry{
			Member:    memberResponse{ID: sum.Member.ID, Name: sum.Member.Name, HouseholdID: sum.Member.HouseholdID},
			TotalPaid: sum.Totals.TotalPaid.String(),
			TotalOwed: sum.Totals.TotalOwed.String(),
			Balance:   sum.Totals.Balance.String(),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.store.ListPeriods(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	type periodEntry struct {
		ID    int64  `json:"id"`
		Token string `json:"token"`
	}
	out := make([]periodEntry, len(periods))
	for i, p := range periods {
		out[i] = periodEntry{ID: p.ID, Token: string(p.Token)}
	}
	respondJSON(w, http.StatusOK, out)
}
