package sqlinline

const QHealthcheck = `--sql 02f1f04f-35b7-4f4a-9f2d-0caa41a06c77
select 1;
`

const QEconomicsSummary = `--sql fa63ddf2-8b00-4c13-a3a2-dd1b6106724d
select
    coalesce(sum(revenue_usd) filter (where entry_type = 'purchase'), 0)::numeric::text,
    coalesce(sum(vendor_cost_usd) filter (where entry_type = 'consumption'), 0)::numeric::text,
    coalesce(sum(margin_usd), 0)::numeric::text,
    coalesce(sum(credits) filter (where entry_type = 'purchase'), 0)::bigint,
    coalesce(sum(credits) filter (where entry_type = 'consumption'), 0)::bigint
from vendor_ledger;
`

const QEconomicsByVendor = `--sql b935c1b6-b7ad-4eb8-9c3b-e3ada9e7c853
select vendor, entry_type, count(*)::bigint, coalesce(sum(credits), 0)::bigint,
       coalesce(sum(revenue_usd), 0)::numeric::text,
       coalesce(sum(vendor_cost_usd), 0)::numeric::text,
       coalesce(sum(margin_usd), 0)::numeric::text
from vendor_ledger
group by vendor, entry_type
order by vendor, entry_type;
`

// QLedgerDrift surfaces users whose cached balance no longer matches the
// ledger sum. The accounting transaction makes new drift impossible; this
// exists to diagnose and repair historic rows.
const QLedgerDrift = `--sql 4dac5840-24ca-43b8-b874-171fa4ab87a1
select u.id, u.email, u.credits, coalesce(l.total, 0)::bigint
from users u
left join (
    select user_id, sum(amount) as total
    from credit_ledger
    group by user_id
) l on l.user_id = u.id
where u.credits <> coalesce(l.total, 0)
order by u.email;
`

const QRepairUserBalance = `--sql 76363f04-0eca-4ffd-a797-fc402567ec18
update users u
set credits = sub.total, updated_at = now()
from (
    select coalesce(sum(amount), 0)::bigint as total
    from credit_ledger
    where user_id = $1::uuid
) sub
where u.id = $1::uuid
returning u.credits;
`
