package sqlinline

// QInsertLedgerEntry appends one credit movement. event_key rides the partial
// unique index ux_credit_ledger_event_key, so replayed vendor events fail
// with SQLSTATE 23505 instead of double-applying.
const QInsertLedgerEntry = `--sql f546d83f-be09-45b3-b70b-216ce6715803
insert into credit_ledger (id, user_id, amount, reason, balance_after, event_key,
                           user_email, user_name, dollar_to_credit_pct, meta, created_at)
values (gen_random_uuid(), $1::uuid, $2::bigint, $3::text, $4::bigint, nullif($5::text, ''),
        $6::text, $7::text, $8::int, coalesce($9::jsonb, '{}'::jsonb), now())
returning id;
`

const QListLedgerForUser = `--sql 3a600726-1265-4ef9-b974-cd9ae29a2aff
select id, amount, reason, balance_after, coalesce(event_key, ''), meta, created_at
from credit_ledger
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

const QSumLedgerForUser = `--sql 36493883-9e9b-4de9-b44d-e23d86036a86
select coalesce(sum(amount), 0)::bigint
from credit_ledger
where user_id = $1::uuid;
`

const QInsertVendorLedgerEntry = `--sql d8e41b8e-f2d8-44d9-942e-d298e4ec279d
insert into vendor_ledger (id, user_id, entry_type, vendor, credits,
                           vendor_cost_usd, revenue_usd, margin_usd, meta, created_at)
values (gen_random_uuid(), $1::uuid, $2::text, $3::text, $4::bigint,
        $5::numeric, $6::numeric, $7::numeric, coalesce($8::jsonb, '{}'::jsonb), now())
returning id;
`
